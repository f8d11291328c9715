package ledger

import (
	"context"
	"sort"
	"sync"

	"automation-service/internal/models"
)

// Memory is the in-process Backend. Production wiring uses the Postgres
// backend in internal/db; this one serves tests and storeless runs.
type Memory struct {
	mu      sync.RWMutex
	entries []models.HistoryEntry
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Append(_ context.Context, e models.HistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return nil
}

func (m *Memory) Query(_ context.Context, f Filter) ([]models.HistoryEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.HistoryEntry
	for _, e := range m.entries {
		if !matches(e, f) {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (m *Memory) CountTaskFirings(_ context.Context, systemID, taskID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, e := range m.entries {
		if e.SystemID == systemID && e.Stream == models.StreamTask &&
			e.TaskID == taskID && e.Outcome != models.OutcomeDeleted {
			n++
		}
	}
	return n, nil
}

func matches(e models.HistoryEntry, f Filter) bool {
	if f.SystemID != "" && e.SystemID != f.SystemID {
		return false
	}
	if f.Stream != "" && e.Stream != f.Stream {
		return false
	}
	if f.TaskID != "" && e.TaskID != f.TaskID {
		return false
	}
	if f.NodeID != "" && e.NodeID != f.NodeID {
		return false
	}
	if f.StationID != "" && e.StationID != f.StationID {
		return false
	}
	if f.AreaID != "" && e.AreaID != f.AreaID {
		return false
	}
	if f.DevType != "" && e.DevType != f.DevType {
		return false
	}
	if !f.Begin.IsZero() && e.Timestamp.Before(f.Begin) {
		return false
	}
	if !f.End.IsZero() && !e.Timestamp.Before(f.End) {
		return false
	}
	return true
}
