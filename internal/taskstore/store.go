// Package taskstore owns task definitions: creation with full structural
// validation, partial-patch updates, and deletion with a terminal ledger
// marker.
package taskstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"automation-service/internal/models"
)

// Resolver validates that a task's targets exist in the topology.
type Resolver interface {
	ResolveStation(systemID, stationID string) (models.ResolvedAddress, error)
}

// Recorder appends to the execution ledger. Used for the terminal marker a
// delete must leave behind.
type Recorder interface {
	Append(ctx context.Context, e models.HistoryEntry) error
}

// Durable is the write-through persistence. Nil keeps the store memory-only.
type Durable interface {
	SaveTask(ctx context.Context, def models.TaskDefinition) error
	DeleteTask(ctx context.Context, systemID, taskID string) error
}

type taskKey struct {
	system string
	task   string
}

type Store struct {
	mu       sync.RWMutex
	tasks    map[taskKey]models.TaskDefinition
	resolver Resolver
	recorder Recorder
	durable  Durable
	now      func() time.Time
}

func New(resolver Resolver, recorder Recorder, durable Durable) *Store {
	return &Store{
		tasks:    make(map[taskKey]models.TaskDefinition),
		resolver: resolver,
		recorder: recorder,
		durable:  durable,
		now:      time.Now,
	}
}

// Seed loads existing definitions without validation side effects.
func (s *Store) Seed(defs []models.TaskDefinition) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range defs {
		s.tasks[taskKey{d.SystemID, d.TaskID}] = d
	}
}

// Create validates the definition and every station target before anything is
// persisted; a failing target aborts the whole creation.
func (s *Store) Create(ctx context.Context, def models.TaskDefinition) (models.TaskDefinition, error) {
	if def.TaskID == "" {
		def.TaskID = uuid.NewString()
	}
	if def.CreatedAt.IsZero() {
		def.CreatedAt = s.now()
	}
	if err := def.Validate(); err != nil {
		return models.TaskDefinition{}, err
	}
	if err := s.resolveTargets(def); err != nil {
		return models.TaskDefinition{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	key := taskKey{def.SystemID, def.TaskID}
	if _, dup := s.tasks[key]; dup {
		return models.TaskDefinition{}, fmt.Errorf("task %s in system %s: %w", def.TaskID, def.SystemID, models.ErrConflict)
	}
	if s.durable != nil {
		if err := s.durable.SaveTask(ctx, def); err != nil {
			return models.TaskDefinition{}, &models.StorageError{Op: "save task", Err: err}
		}
	}
	s.tasks[key] = def
	return def, nil
}

// Update applies a partial patch. Only supplied fields are re-validated;
// unspecified fields are untouched.
func (s *Store) Update(ctx context.Context, patch models.TaskPatch) (models.TaskDefinition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := taskKey{patch.SystemID, patch.TaskID}
	cur, ok := s.tasks[key]
	if !ok {
		return models.TaskDefinition{}, fmt.Errorf("task %s in system %s: %w", patch.TaskID, patch.SystemID, models.ErrNotFound)
	}
	merged, err := patch.Apply(cur).Definition()
	if err != nil {
		return models.TaskDefinition{}, err
	}
	merged.CreatedAt = cur.CreatedAt
	if patch.Station != nil {
		if err := s.resolveTargets(merged); err != nil {
			return models.TaskDefinition{}, err
		}
	}
	if s.durable != nil {
		if err := s.durable.SaveTask(ctx, merged); err != nil {
			return models.TaskDefinition{}, &models.StorageError{Op: "save task", Err: err}
		}
	}
	s.tasks[key] = merged
	return merged, nil
}

// Delete removes a task and leaves a terminal marker in the ledger so the
// task's history does not end in a silent disappearance.
func (s *Store) Delete(ctx context.Context, systemID, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := taskKey{systemID, taskID}
	def, ok := s.tasks[key]
	if !ok {
		return fmt.Errorf("task %s in system %s: %w", taskID, systemID, models.ErrNotFound)
	}
	if s.durable != nil {
		if err := s.durable.DeleteTask(ctx, systemID, taskID); err != nil {
			return &models.StorageError{Op: "delete task", Err: err}
		}
	}
	delete(s.tasks, key)
	if s.recorder != nil {
		marker := models.HistoryEntry{
			ID:        uuid.New(),
			SystemID:  systemID,
			Stream:    models.StreamTask,
			TaskID:    taskID,
			AreaID:    def.AreaID,
			Action:    def.Action,
			Outcome:   models.OutcomeDeleted,
			Timestamp: s.now(),
		}
		if err := s.recorder.Append(ctx, marker); err != nil {
			return &models.StorageError{Op: "append delete marker", Err: err}
		}
	}
	return nil
}

func (s *Store) Get(systemID, taskID string) (models.TaskDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	def, ok := s.tasks[taskKey{systemID, taskID}]
	if !ok {
		return models.TaskDefinition{}, fmt.Errorf("task %s in system %s: %w", taskID, systemID, models.ErrNotFound)
	}
	return def, nil
}

// ListBySystem pages tasks ordered by taskID. number == 0 returns all
// remaining from first.
func (s *Store) ListBySystem(systemID string, first, number int) []models.TaskDefinition {
	return s.list(func(d models.TaskDefinition) bool { return d.SystemID == systemID }, first, number)
}

// ListByArea narrows to one area binding.
func (s *Store) ListByArea(systemID, areaID string, first, number int) []models.TaskDefinition {
	return s.list(func(d models.TaskDefinition) bool {
		return d.SystemID == systemID && d.AreaID == areaID
	}, first, number)
}

// All returns every definition across systems, for dispatcher ticks.
func (s *Store) All() []models.TaskDefinition {
	return s.list(func(models.TaskDefinition) bool { return true }, 0, 0)
}

func (s *Store) list(keep func(models.TaskDefinition) bool, first, number int) []models.TaskDefinition {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.TaskDefinition
	for _, d := range s.tasks {
		if keep(d) {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TaskID < out[j].TaskID })
	if first < 0 {
		first = 0
	}
	if first >= len(out) {
		return nil
	}
	out = out[first:]
	if number > 0 && number < len(out) {
		out = out[:number]
	}
	return out
}

func (s *Store) resolveTargets(def models.TaskDefinition) error {
	if s.resolver == nil {
		return nil
	}
	for _, ref := range def.Stations {
		if _, err := s.resolver.ResolveStation(def.SystemID, ref.StationID); err != nil {
			return fmt.Errorf("target %s: %w", ref.StationID, err)
		}
	}
	return nil
}
