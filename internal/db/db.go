package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type DB struct {
	Pool *pgxpool.Pool
}

func New(dsn string) (*DB, error) {
	pool, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	return &DB{Pool: pool}, nil
}

func (d *DB) Close() {
	d.Pool.Close()
}

// Migrate creates the schema when it does not exist yet. Idempotent.
func (d *DB) Migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS hosts (
            system_id      TEXT NOT NULL,
            host_no        INT NOT NULL,
            host_name      TEXT NOT NULL DEFAULT '',
            host_type      TEXT NOT NULL DEFAULT '',
            dev_eui        TEXT NOT NULL DEFAULT '',
            max_connection INT NOT NULL DEFAULT 0,
            location       TEXT NOT NULL DEFAULT '',
            latitude       DOUBLE PRECISION NOT NULL DEFAULT 0,
            longitude      DOUBLE PRECISION NOT NULL DEFAULT 0,
            memo           TEXT NOT NULL DEFAULT '',
            created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
            PRIMARY KEY (system_id, host_no)
        )`,
		`CREATE TABLE IF NOT EXISTS nodes (
            system_id  TEXT NOT NULL,
            host_no    INT NOT NULL,
            node_no    INT NOT NULL,
            node_name  TEXT NOT NULL DEFAULT '',
            activation TEXT NOT NULL DEFAULT 'ACTIVE',
            wake       TEXT NOT NULL DEFAULT 'AWAKE',
            location   TEXT NOT NULL DEFAULT '',
            memo       TEXT NOT NULL DEFAULT '',
            created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
            PRIMARY KEY (system_id, host_no, node_no)
        )`,
		`CREATE TABLE IF NOT EXISTS substations (
            system_id  TEXT NOT NULL,
            station_id TEXT NOT NULL,
            host_no    INT NOT NULL,
            node_no    INT NOT NULL,
            port_no    INT NOT NULL DEFAULT 0,
            area_id    TEXT NOT NULL DEFAULT '',
            dev_eui    TEXT NOT NULL DEFAULT '',
            dev_type   TEXT NOT NULL DEFAULT '',
            name       TEXT NOT NULL DEFAULT '',
            unit_id    INT NOT NULL DEFAULT 0,
            register   INT NOT NULL DEFAULT 0,
            power_on   BOOLEAN NOT NULL DEFAULT FALSE,
            location   TEXT NOT NULL DEFAULT '',
            memo       TEXT NOT NULL DEFAULT '',
            created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
            PRIMARY KEY (system_id, station_id)
        )`,
		`CREATE TABLE IF NOT EXISTS tasks (
            system_id  TEXT NOT NULL,
            task_id    TEXT NOT NULL,
            area_id    TEXT NOT NULL DEFAULT '',
            definition JSONB NOT NULL,
            created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
            PRIMARY KEY (system_id, task_id)
        )`,
		`CREATE TABLE IF NOT EXISTS run_modes (
            system_id TEXT NOT NULL,
            task_id   TEXT NOT NULL,
            mode      TEXT NOT NULL,
            PRIMARY KEY (system_id, task_id)
        )`,
		`CREATE TABLE IF NOT EXISTS history (
            id         UUID PRIMARY KEY,
            system_id  TEXT NOT NULL,
            stream     TEXT NOT NULL,
            task_id    TEXT NOT NULL DEFAULT '',
            node_id    TEXT NOT NULL DEFAULT '',
            station_id TEXT NOT NULL DEFAULT '',
            area_id    TEXT NOT NULL DEFAULT '',
            dev_type   TEXT NOT NULL DEFAULT '',
            action     TEXT NOT NULL DEFAULT '',
            value      DOUBLE PRECISION NOT NULL DEFAULT 0,
            outcome    TEXT NOT NULL,
            error      TEXT NOT NULL DEFAULT '',
            ts         TIMESTAMPTZ NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS audit_log (
            id        BIGSERIAL PRIMARY KEY,
            op        TEXT NOT NULL,
            system_id TEXT NOT NULL,
            actor     TEXT NOT NULL DEFAULT '',
            detail    TEXT NOT NULL DEFAULT '',
            code      TEXT NOT NULL,
            ts        TIMESTAMPTZ NOT NULL
        )`,
		`CREATE INDEX IF NOT EXISTS history_task_idx ON history (system_id, stream, task_id, ts)`,
		`CREATE INDEX IF NOT EXISTS history_station_idx ON history (system_id, stream, station_id, ts)`,
	}
	for _, stmt := range statements {
		if _, err := d.Pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to run migration: %w", err)
		}
	}
	return nil
}
