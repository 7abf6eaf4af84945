// Package db mirrors pipeline events into Postgres for cross-project reporting.
package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DB wraps a Postgres connection pool.
type DB struct {
	pool *pgxpool.Pool
}

// Open connects to the database at url and verifies the connection.
func Open(ctx context.Context, url string) (*DB, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &DB{pool: pool}, nil
}

// Close releases the pool.
func (d *DB) Close() {
	d.pool.Close()
}

// Pool returns the underlying pool for advanced queries.
func (d *DB) Pool() *pgxpool.Pool {
	return d.pool
}

const schemaV1 = `
CREATE TABLE IF NOT EXISTS schema_version (
    version    INTEGER PRIMARY KEY,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS pipeline_events (
    id          BIGSERIAL PRIMARY KEY,
    project     TEXT NOT NULL,
    event       TEXT NOT NULL,
    stage       TEXT,
    phase       TEXT,
    detail      TEXT,
    timestamp   TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_pipeline_project ON pipeline_events(project, timestamp DESC);

CREATE TABLE IF NOT EXISTS gate_evaluations (
    id          BIGSERIAL PRIMARY KEY,
    project     TEXT NOT NULL,
    checkpoint  TEXT NOT NULL,
    verdict     TEXT NOT NULL CHECK(verdict IN ('PASS','CONCERNS','FAIL','WAIVED')),
    score       INTEGER NOT NULL,
    reason      TEXT,
    timestamp   TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_gate_project ON gate_evaluations(project, checkpoint, timestamp DESC);
`

// Migrate applies the database schema.
func (d *DB) Migrate(ctx context.Context) error {
	var count int
	err := d.pool.QueryRow(ctx, "SELECT COUNT(*) FROM schema_version WHERE version = 1").Scan(&count)
	if err == nil && count > 0 {
		return nil
	}

	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, schemaV1); err != nil {
		return fmt.Errorf("apply schema v1: %w", err)
	}
	if _, err := tx.Exec(ctx, "INSERT INTO schema_version (version) VALUES (1) ON CONFLICT DO NOTHING"); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	return tx.Commit(ctx)
}

// Reset drops all tables and re-applies the schema.
func (d *DB) Reset(ctx context.Context) error {
	tables := []string{"gate_evaluations", "pipeline_events", "schema_version"}
	for _, t := range tables {
		if _, err := d.pool.Exec(ctx, "DROP TABLE IF EXISTS "+t); err != nil {
			return fmt.Errorf("drop table %s: %w", t, err)
		}
	}
	return d.Migrate(ctx)
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
