package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgtype"

	"automation-service/internal/ledger"
	"automation-service/internal/models"
)

// Append writes one ledger entry. The ledger is append-only; there is no
// update or delete path for history rows.
func (d *DB) Append(ctx context.Context, e models.HistoryEntry) error {
	query := `
        INSERT INTO history (
            id, system_id, stream, task_id, node_id, station_id, area_id,
            dev_type, action, value, outcome, error, ts
        )
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`
	_, err := d.Pool.Exec(ctx, query,
		e.ID, e.SystemID, string(e.Stream), e.TaskID, e.NodeID, e.StationID,
		e.AreaID, e.DevType, string(e.Action), e.Value, string(e.Outcome),
		e.Error, e.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to append history entry: %w", err)
	}
	return nil
}

// Query returns matching entries ascending by timestamp.
func (d *DB) Query(ctx context.Context, f ledger.Filter) ([]models.HistoryEntry, error) {
	var conds []string
	var args []any
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.SystemID != "" {
		add("system_id = $%d", f.SystemID)
	}
	if f.Stream != "" {
		add("stream = $%d", string(f.Stream))
	}
	if f.TaskID != "" {
		add("task_id = $%d", f.TaskID)
	}
	if f.NodeID != "" {
		add("node_id = $%d", f.NodeID)
	}
	if f.StationID != "" {
		add("station_id = $%d", f.StationID)
	}
	if f.AreaID != "" {
		add("area_id = $%d", f.AreaID)
	}
	if f.DevType != "" {
		add("dev_type = $%d", f.DevType)
	}
	if !f.Begin.IsZero() {
		add("ts >= $%d", f.Begin)
	}
	if !f.End.IsZero() {
		add("ts < $%d", f.End)
	}

	query := `
        SELECT id, system_id, stream, task_id, node_id, station_id, area_id,
               dev_type, action, value, outcome, error, ts
        FROM history`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY ts ASC"

	rows, err := d.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var entries []models.HistoryEntry
	for rows.Next() {
		var e models.HistoryEntry
		var id pgtype.UUID
		var stream, action, outcome string
		if err := rows.Scan(&id, &e.SystemID, &stream, &e.TaskID, &e.NodeID,
			&e.StationID, &e.AreaID, &e.DevType, &action, &e.Value, &outcome,
			&e.Error, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan history entry: %w", err)
		}
		e.ID = id.Bytes
		e.Stream = models.Stream(stream)
		e.Action = models.Action(action)
		e.Outcome = models.Outcome(outcome)
		entries = append(entries, e)
	}
	return entries, nil
}

// CountTaskFirings counts a task's recorded firings, excluding the terminal
// delete marker.
func (d *DB) CountTaskFirings(ctx context.Context, systemID, taskID string) (int, error) {
	var n int
	err := d.Pool.QueryRow(ctx, `
        SELECT COUNT(*) FROM history
        WHERE system_id = $1 AND stream = $2 AND task_id = $3 AND outcome <> $4`,
		systemID, string(models.StreamTask), taskID, string(models.OutcomeDeleted)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count firings for task %s: %w", taskID, err)
	}
	return n, nil
}
