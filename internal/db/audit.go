package db

import (
	"context"
	"fmt"

	"automation-service/internal/models"
)

// SaveAudit appends one topology operation-log row.
func (d *DB) SaveAudit(ctx context.Context, e models.AuditEntry) error {
	_, err := d.Pool.Exec(ctx, `
        INSERT INTO audit_log (op, system_id, actor, detail, code, ts)
        VALUES ($1, $2, $3, $4, $5, $6)`,
		e.Op, e.SystemID, e.Actor, e.Detail, e.Code, e.Time)
	if err != nil {
		return fmt.Errorf("failed to save audit entry: %w", err)
	}
	return nil
}

// RecentAudit returns the newest operation-log rows for one system.
func (d *DB) RecentAudit(ctx context.Context, systemID string, limit int) ([]models.AuditEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := d.Pool.Query(ctx, `
        SELECT op, system_id, actor, detail, code, ts
        FROM audit_log
        WHERE system_id = $1
        ORDER BY id DESC
        LIMIT $2`, systemID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	var entries []models.AuditEntry
	for rows.Next() {
		var e models.AuditEntry
		if err := rows.Scan(&e.Op, &e.SystemID, &e.Actor, &e.Detail, &e.Code, &e.Time); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}
