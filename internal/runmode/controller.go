// Package runmode gates task dispatch. All mode writes go through the
// controller so the dispatcher always reads a consistent value.
package runmode

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"automation-service/internal/models"
)

// Lookup confirms a task exists before its mode can be set.
type Lookup interface {
	Get(systemID, taskID string) (models.TaskDefinition, error)
}

// Durable persists mode changes. Nil keeps the controller memory-only.
type Durable interface {
	SaveRunMode(ctx context.Context, systemID, taskID string, mode models.RunMode) error
	DeleteRunMode(ctx context.Context, systemID, taskID string) error
}

type modeKey struct {
	system string
	task   string
}

type Controller struct {
	mu      sync.RWMutex
	modes   map[modeKey]models.RunMode
	tasks   Lookup
	durable Durable
}

func New(tasks Lookup, durable Durable) *Controller {
	return &Controller{
		modes:   make(map[modeKey]models.RunMode),
		tasks:   tasks,
		durable: durable,
	}
}

// Seed loads persisted modes at startup.
func (c *Controller) Seed(modes map[string]map[string]models.RunMode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for system, byTask := range modes {
		for task, mode := range byTask {
			c.modes[modeKey{system, task}] = mode
		}
	}
}

// Set changes a task's run mode. The task must exist.
func (c *Controller) Set(ctx context.Context, systemID, taskID string, mode models.RunMode) error {
	if !models.ValidRunMode(mode) {
		return models.Invalid("runMode", fmt.Sprintf("unknown mode %q", mode))
	}
	if c.tasks != nil {
		if _, err := c.tasks.Get(systemID, taskID); err != nil {
			return err
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.durable != nil {
		if err := c.durable.SaveRunMode(ctx, systemID, taskID, mode); err != nil {
			return &models.StorageError{Op: "save run mode", Err: err}
		}
	}
	c.modes[modeKey{systemID, taskID}] = mode
	return nil
}

// Get returns a task's run mode; tasks default to AUTO.
func (c *Controller) Get(systemID, taskID string) models.RunMode {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if mode, ok := c.modes[modeKey{systemID, taskID}]; ok {
		return mode
	}
	return models.RunAuto
}

// Forget drops state for a deleted task.
func (c *Controller) Forget(ctx context.Context, systemID, taskID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := modeKey{systemID, taskID}
	if _, ok := c.modes[key]; !ok {
		return nil
	}
	if c.durable != nil {
		if err := c.durable.DeleteRunMode(ctx, systemID, taskID); err != nil {
			return &models.StorageError{Op: "delete run mode", Err: err}
		}
	}
	delete(c.modes, key)
	return nil
}

// ListBySystem pages the modes of every task in a system, ordered by taskID.
// Tasks that never had an explicit set report AUTO. number == 0 returns all
// remaining from first.
func (c *Controller) ListBySystem(systemID string, first, number int) []models.TaskRunMode {
	var out []models.TaskRunMode
	if c.tasks != nil {
		if all, ok := c.tasks.(interface {
			ListBySystem(systemID string, first, number int) []models.TaskDefinition
		}); ok {
			for _, def := range all.ListBySystem(systemID, 0, 0) {
				out = append(out, models.TaskRunMode{TaskID: def.TaskID, RunMode: c.Get(systemID, def.TaskID)})
			}
		}
	}
	if out == nil {
		c.mu.RLock()
		for k, mode := range c.modes {
			if k.system == systemID {
				out = append(out, models.TaskRunMode{TaskID: k.task, RunMode: mode})
			}
		}
		c.mu.RUnlock()
		sort.Slice(out, func(i, j int) bool { return out[i].TaskID < out[j].TaskID })
	}
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
