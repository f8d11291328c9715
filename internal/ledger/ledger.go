// Package ledger is the append-only execution/parameter history. Appends
// never fail silently; a storage failure is surfaced to the caller.
package ledger

import (
	"context"
	"fmt"
	"time"

	"automation-service/internal/models"
)

// Filter narrows a ledger query. Zero time bounds are open.
type Filter struct {
	SystemID  string
	Stream    models.Stream
	TaskID    string
	NodeID    string
	StationID string
	AreaID    string
	DevType   string
	Begin     time.Time
	End       time.Time // exclusive
}

// Backend is the durable append-only store behind the ledger.
type Backend interface {
	Append(ctx context.Context, e models.HistoryEntry) error
	Query(ctx context.Context, f Filter) ([]models.HistoryEntry, error)
	CountTaskFirings(ctx context.Context, systemID, taskID string) (int, error)
}

type Ledger struct {
	backend Backend
}

func New(backend Backend) *Ledger {
	return &Ledger{backend: backend}
}

// Append writes one entry.
func (l *Ledger) Append(ctx context.Context, e models.HistoryEntry) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	if err := l.backend.Append(ctx, e); err != nil {
		return &models.StorageError{Op: "ledger append", Err: err}
	}
	return nil
}

// CountTaskFirings is the source of truth for a task's cycle budget.
// Terminal delete markers do not count as firings.
func (l *Ledger) CountTaskFirings(ctx context.Context, systemID, taskID string) (int, error) {
	n, err := l.backend.CountTaskFirings(ctx, systemID, taskID)
	if err != nil {
		return 0, &models.StorageError{Op: "ledger count", Err: err}
	}
	return n, nil
}

// QueryTaskHistory returns a task's firings in [begin, end), ascending. An
// empty result is a valid outcome, distinct from an unknown task (the caller
// resolves the task first).
func (l *Ledger) QueryTaskHistory(ctx context.Context, systemID, taskID string, begin, end time.Time) ([]models.HistoryEntry, error) {
	return l.query(ctx, Filter{
		SystemID: systemID, Stream: models.StreamTask, TaskID: taskID,
		Begin: begin, End: end,
	})
}

// QueryNodeHistory returns a node's parameter history in [begin, end).
func (l *Ledger) QueryNodeHistory(ctx context.Context, systemID, nodeID string, begin, end time.Time) ([]models.HistoryEntry, error) {
	return l.query(ctx, Filter{
		SystemID: systemID, Stream: models.StreamNode, NodeID: nodeID,
		Begin: begin, End: end,
	})
}

// QueryStationHistory returns station actuation history with the aggregation
// mode resolved into a [start, end) interval from beginDay.
func (l *Ledger) QueryStationHistory(ctx context.Context, systemID, stationID, areaID, devType string, mode models.QueryMode, beginDay, endDay string) ([]models.HistoryEntry, error) {
	begin, end, err := Window(mode, beginDay, endDay)
	if err != nil {
		return nil, err
	}
	return l.query(ctx, Filter{
		SystemID: systemID, Stream: models.StreamStation,
		StationID: stationID, AreaID: areaID, DevType: devType,
		Begin: begin, End: end,
	})
}

func (l *Ledger) query(ctx context.Context, f Filter) ([]models.HistoryEntry, error) {
	entries, err := l.backend.Query(ctx, f)
	if err != nil {
		return nil, &models.StorageError{Op: "ledger query", Err: err}
	}
	return entries, nil
}

// Window resolves an aggregation mode and beginDay into [start, end). With no
// mode, the interval is [beginDay, endDay] inclusive of the end day.
func Window(mode models.QueryMode, beginDay, endDay string) (time.Time, time.Time, error) {
	begin, err := models.ParseDay(beginDay)
	if err != nil {
		return time.Time{}, time.Time{}, models.Invalid("beginDay", err.Error())
	}
	switch mode {
	case models.QueryDay:
		return begin, begin.AddDate(0, 0, 1), nil
	case models.QueryWeek:
		return begin, begin.AddDate(0, 0, 7), nil
	case models.QueryMonth:
		return begin, begin.AddDate(0, 1, 0), nil
	case models.QueryQuarter:
		return begin, begin.AddDate(0, 3, 0), nil
	case models.QueryYear:
		return begin, begin.AddDate(1, 0, 0), nil
	case "":
		end, err := models.ParseDay(endDay)
		if err != nil {
			return time.Time{}, time.Time{}, models.Invalid("endDay", err.Error())
		}
		if end.Before(begin) {
			return time.Time{}, time.Time{}, models.Invalid("endDay", "before beginDay")
		}
		return begin, end.AddDate(0, 0, 1), nil
	default:
		return time.Time{}, time.Time{}, models.Invalid("qureyMode", fmt.Sprintf("unknown mode %q", mode))
	}
}
