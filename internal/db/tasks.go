package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"automation-service/internal/models"
)

// SaveTask upserts a task definition. The tagged variant is stored in its flat
// wire form so one JSONB column covers every task type.
func (d *DB) SaveTask(ctx context.Context, def models.TaskDefinition) error {
	payload, err := json.Marshal(models.Flatten(def))
	if err != nil {
		return fmt.Errorf("failed to marshal task %s: %w", def.TaskID, err)
	}
	query := `
        INSERT INTO tasks (system_id, task_id, area_id, definition, created_at)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (system_id, task_id) DO UPDATE SET
            area_id = EXCLUDED.area_id, definition = EXCLUDED.definition`
	_, err = d.Pool.Exec(ctx, query, def.SystemID, def.TaskID, def.AreaID, payload, def.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save task %s: %w", def.TaskID, err)
	}
	return nil
}

func (d *DB) DeleteTask(ctx context.Context, systemID, taskID string) error {
	_, err := d.Pool.Exec(ctx,
		`DELETE FROM tasks WHERE system_id = $1 AND task_id = $2`, systemID, taskID)
	if err != nil {
		return fmt.Errorf("failed to delete task %s: %w", taskID, err)
	}
	return nil
}

// LoadTasks reads every stored definition for store seeding. Rows that no
// longer pass validation are skipped, not fatal.
func (d *DB) LoadTasks(ctx context.Context) ([]models.TaskDefinition, error) {
	rows, err := d.Pool.Query(ctx, `SELECT definition, created_at FROM tasks`)
	if err != nil {
		return nil, fmt.Errorf("failed to load tasks: %w", err)
	}
	defer rows.Close()

	var defs []models.TaskDefinition
	for rows.Next() {
		var payload []byte
		var createdAt time.Time
		if err := rows.Scan(&payload, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		var in models.TaskInput
		if err := json.Unmarshal(payload, &in); err != nil {
			continue
		}
		def, err := in.Definition()
		if err != nil {
			continue
		}
		def.CreatedAt = createdAt
		defs = append(defs, def)
	}
	return defs, nil
}

// SaveRunMode upserts one task's run mode.
func (d *DB) SaveRunMode(ctx context.Context, systemID, taskID string, mode models.RunMode) error {
	query := `
        INSERT INTO run_modes (system_id, task_id, mode)
        VALUES ($1, $2, $3)
        ON CONFLICT (system_id, task_id) DO UPDATE SET mode = EXCLUDED.mode`
	_, err := d.Pool.Exec(ctx, query, systemID, taskID, string(mode))
	if err != nil {
		return fmt.Errorf("failed to save run mode for task %s: %w", taskID, err)
	}
	return nil
}

func (d *DB) DeleteRunMode(ctx context.Context, systemID, taskID string) error {
	_, err := d.Pool.Exec(ctx,
		`DELETE FROM run_modes WHERE system_id = $1 AND task_id = $2`, systemID, taskID)
	if err != nil {
		return fmt.Errorf("failed to delete run mode for task %s: %w", taskID, err)
	}
	return nil
}

// LoadRunModes reads persisted modes keyed system -> task for seeding.
func (d *DB) LoadRunModes(ctx context.Context) (map[string]map[string]models.RunMode, error) {
	rows, err := d.Pool.Query(ctx, `SELECT system_id, task_id, mode FROM run_modes`)
	if err != nil {
		return nil, fmt.Errorf("failed to load run modes: %w", err)
	}
	defer rows.Close()

	out := make(map[string]map[string]models.RunMode)
	for rows.Next() {
		var systemID, taskID, mode string
		if err := rows.Scan(&systemID, &taskID, &mode); err != nil {
			return nil, fmt.Errorf("failed to scan run mode: %w", err)
		}
		if out[systemID] == nil {
			out[systemID] = make(map[string]models.RunMode)
		}
		out[systemID][taskID] = models.RunMode(mode)
	}
	return out, nil
}
