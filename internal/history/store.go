// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package history persists a bounded log of bundle update runs in SQLite.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // pure Go driver
)

// DefaultKeep is the number of runs retained when Options.Keep is zero.
const DefaultKeep = 200

// Run is one recorded update run.
type Run struct {
	ID         int64         `json:"id"`
	JobID      string        `json:"job_id"`
	Trigger    string        `json:"trigger"`
	Outcome    string        `json:"outcome"`
	URL        string        `json:"url,omitempty"`
	Bytes      int64         `json:"bytes,omitempty"`
	Error      string        `json:"error,omitempty"`
	FinishedAt time.Time     `json:"finished_at"`
	Duration   time.Duration `json:"duration_ns"`
}

// Options tunes the store.
type Options struct {
	Keep        int
	BusyTimeout time.Duration
}

// Store is a SQLite-backed run log.
type Store struct {
	db   *sql.DB
	keep int
}

// Open opens or creates the database at path and applies the schema.
func Open(ctx context.Context, path string, opts Options) (*Store, error) {
	if opts.Keep <= 0 {
		opts.Keep = DefaultKeep
	}
	if opts.BusyTimeout <= 0 {
		opts.BusyTimeout = 5 * time.Second
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("history: create dir: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=synchronous(NORMAL)",
		path, opts.BusyTimeout.Milliseconds())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("history: open: %w", err)
	}
	// One writer; runs are recorded one at a time anyway.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("history: ping: %w", err)
	}
	s := &Store{db: db, keep: opts.Keep}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("history: migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS update_runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		job_id TEXT NOT NULL,
		run_trigger TEXT NOT NULL CHECK(run_trigger IN ('load', 'retry')),
		outcome TEXT NOT NULL,
		url TEXT NOT NULL DEFAULT '',
		bytes INTEGER NOT NULL DEFAULT 0,
		error TEXT NOT NULL DEFAULT '',
		finished_at TEXT NOT NULL,
		duration_ms INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_update_runs_finished ON update_runs(finished_at);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Record appends r and drops runs beyond the retention limit.
func (s *Store) Record(ctx context.Context, r Run) error {
	if r.Trigger != "load" && r.Trigger != "retry" {
		return fmt.Errorf("history: invalid trigger %q", r.Trigger)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
	INSERT INTO update_runs (job_id, run_trigger, outcome, url, bytes, error, finished_at, duration_ms)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.JobID, r.Trigger, r.Outcome, r.URL, r.Bytes, r.Error,
		r.FinishedAt.UTC().Format(time.RFC3339Nano), r.Duration.Milliseconds(),
	); err != nil {
		return fmt.Errorf("history: insert: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
	DELETE FROM update_runs
	WHERE id NOT IN (SELECT id FROM update_runs ORDER BY id DESC LIMIT ?)`, s.keep); err != nil {
		return fmt.Errorf("history: prune: %w", err)
	}
	return tx.Commit()
}

// Recent returns up to limit runs, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		return nil, errors.New("history: limit must be positive")
	}
	rows, err := s.db.QueryContext(ctx, `
	SELECT id, job_id, run_trigger, outcome, url, bytes, error, finished_at, duration_ms
	FROM update_runs
	ORDER BY id DESC
	LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	runs := make([]Run, 0, limit)
	for rows.Next() {
		var (
			r          Run
			finishedAt string
			durMS      int64
		)
		if err := rows.Scan(&r.ID, &r.JobID, &r.Trigger, &r.Outcome, &r.URL, &r.Bytes, &r.Error, &finishedAt, &durMS); err != nil {
			return nil, err
		}
		if t, err := time.Parse(time.RFC3339Nano, finishedAt); err == nil {
			r.FinishedAt = t
		}
		r.Duration = time.Duration(durMS) * time.Millisecond
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }
