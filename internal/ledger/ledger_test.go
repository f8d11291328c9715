package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"automation-service/internal/models"
)

func entry(stream models.Stream, taskID, stationID string, ts time.Time) models.HistoryEntry {
	return models.HistoryEntry{
		ID:        uuid.New(),
		SystemID:  "sys1",
		Stream:    stream,
		TaskID:    taskID,
		StationID: stationID,
		Outcome:   models.OutcomeSuccess,
		Timestamp: ts,
	}
}

func TestQueryTaskHistoryOrderedAscending(t *testing.T) {
	l := New(NewMemory())
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for _, off := range []time.Duration{2 * time.Hour, 0, time.Hour} {
		if err := l.Append(ctx, entry(models.StreamTask, "t1", "", base.Add(off))); err != nil {
			t.Fatal(err)
		}
	}
	got, err := l.QueryTaskHistory(ctx, "sys1", "t1", base.Add(-time.Hour), base.Add(3*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d entries, want 3", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].Timestamp.Before(got[i-1].Timestamp) {
			t.Fatal("entries not ascending")
		}
	}
}

func TestEmptyResultIsNotAnError(t *testing.T) {
	l := New(NewMemory())
	got, err := l.QueryTaskHistory(context.Background(), "sys1", "t1", time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("empty query errored: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("got %d entries, want 0", len(got))
	}
}

func TestCountFiringsSkipsDeleteMarker(t *testing.T) {
	l := New(NewMemory())
	ctx := context.Background()
	now := time.Now()
	for i := 0; i < 3; i++ {
		if err := l.Append(ctx, entry(models.StreamTask, "t1", "", now)); err != nil {
			t.Fatal(err)
		}
	}
	marker := entry(models.StreamTask, "t1", "", now)
	marker.Outcome = models.OutcomeDeleted
	if err := l.Append(ctx, marker); err != nil {
		t.Fatal(err)
	}
	// Per-target station entries don't count either.
	if err := l.Append(ctx, entry(models.StreamStation, "t1", "st-1", now)); err != nil {
		t.Fatal(err)
	}

	n, err := l.CountTaskFirings(ctx, "sys1", "t1")
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Errorf("count = %d, want 3", n)
	}
}

func TestWindowResolution(t *testing.T) {
	cases := []struct {
		mode models.QueryMode
		days int
	}{
		{models.QueryDay, 1},
		{models.QueryWeek, 7},
		{models.QueryQuarter, 92}, // 2024-03-01 .. 2024-06-01
	}
	for _, tc := range cases {
		begin, end, err := Window(tc.mode, "2024-03-01", "")
		if err != nil {
			t.Fatalf("%s: %v", tc.mode, err)
		}
		if got := int(end.Sub(begin).Hours() / 24); got != tc.days {
			t.Errorf("%s: window %d days, want %d", tc.mode, got, tc.days)
		}
	}

	// MONTH spans the calendar month.
	begin, end, err := Window(models.QueryMonth, "2024-02-01", "")
	if err != nil {
		t.Fatal(err)
	}
	if !end.Equal(begin.AddDate(0, 1, 0)) {
		t.Errorf("month window = %v..%v", begin, end)
	}

	// No mode: inclusive day range.
	begin, end, err = Window("", "2024-03-01", "2024-03-03")
	if err != nil {
		t.Fatal(err)
	}
	if got := int(end.Sub(begin).Hours() / 24); got != 3 {
		t.Errorf("range window = %d days, want 3", got)
	}

	if _, _, err := Window("FORTNIGHT", "2024-03-01", ""); err == nil {
		t.Error("expected validation error for unknown mode")
	}
	var ve *models.ValidationError
	if _, _, err := Window("", "2024-03-05", "2024-03-01"); !errors.As(err, &ve) {
		t.Errorf("inverted range: got %v, want validation error", err)
	}
}

func TestStationHistoryFiltersByAreaAndType(t *testing.T) {
	l := New(NewMemory())
	ctx := context.Background()
	ts := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	e1 := entry(models.StreamStation, "t1", "st-1", ts)
	e1.AreaID, e1.DevType = "a1", "pump"
	e2 := entry(models.StreamStation, "t1", "st-2", ts)
	e2.AreaID, e2.DevType = "a2", "valve"
	for _, e := range []models.HistoryEntry{e1, e2} {
		if err := l.Append(ctx, e); err != nil {
			t.Fatal(err)
		}
	}

	got, err := l.QueryStationHistory(ctx, "sys1", "", "a1", "pump", models.QueryDay, "2024-03-01", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].StationID != "st-1" {
		t.Errorf("filtered query = %+v", got)
	}
}
