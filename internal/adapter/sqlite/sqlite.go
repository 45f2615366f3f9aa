// Package sqlite implements the database store on an embedded SQLite file
// for single-node deployments.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

// timeLayout is fixed width so stored timestamps sort and compare as text.
const timeLayout = "2006-01-02T15:04:05.000000Z"

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func parseTime(s string) (time.Time, error) { return time.Parse(timeLayout, s) }

const schema = `
CREATE TABLE IF NOT EXISTS workflow_requests (
	id             TEXT PRIMARY KEY,
	project_id     TEXT NOT NULL,
	crew_ids       TEXT NOT NULL DEFAULT '[]',
	status         TEXT NOT NULL,
	retry_count    INTEGER NOT NULL DEFAULT 0,
	poll_count     INTEGER NOT NULL DEFAULT 0,
	estimated_cost REAL NOT NULL DEFAULT 0,
	actual_cost    REAL NOT NULL DEFAULT 0,
	error          TEXT NOT NULL DEFAULT '',
	created_at     TEXT NOT NULL,
	started_at     TEXT,
	completed_at   TEXT
);
CREATE INDEX IF NOT EXISTS idx_workflow_requests_project ON workflow_requests (project_id, created_at);

CREATE TABLE IF NOT EXISTS usage_events (
	id                  TEXT PRIMARY KEY,
	project_id          TEXT NOT NULL,
	workflow_request_id TEXT NOT NULL DEFAULT '',
	crew_id             TEXT NOT NULL,
	model               TEXT NOT NULL DEFAULT '',
	tier                TEXT NOT NULL DEFAULT '',
	prompt_tokens       INTEGER NOT NULL DEFAULT 0,
	completion_tokens   INTEGER NOT NULL DEFAULT 0,
	total_tokens        INTEGER NOT NULL DEFAULT 0,
	estimated_cost      REAL NOT NULL DEFAULT 0,
	actual_cost         REAL NOT NULL DEFAULT 0,
	status              TEXT NOT NULL,
	batched             INTEGER NOT NULL DEFAULT 0,
	created_at          TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_usage_events_project ON usage_events (project_id, created_at);

CREATE TABLE IF NOT EXISTS budgets (
	scope             TEXT PRIMARY KEY,
	per_request_limit REAL,
	daily_limit       REAL,
	monthly_limit     REAL,
	project_limit     REAL,
	updated_at        TEXT NOT NULL
);
`

// Open opens (creating if needed) the database at path and applies the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer at a time; WAL lets readers proceed.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}
