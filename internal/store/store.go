// Package store persists an append-only audit log of check runs and
// command dispatches to Postgres. It is entirely optional: a daemon run
// without a DSN gets a Store that no-ops every call, so persistence
// never gates a check/lint/build cycle.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dxhq/dx/internal/checkresult"
)

// CheckRecord is one persisted check-task run.
type CheckRecord struct {
	ID          int64
	ProjectRoot string
	TaskID      uint64
	Kind        string
	Files       []string
	Score       int
	DurationMs  int64
	CompletedAt time.Time
}

// CommandRecord is one persisted registry command dispatch.
type CommandRecord struct {
	ID         int64
	Command    string
	Args       []string
	Success    bool
	ExitCode   int
	DurationMs int64
	DispatchedAt time.Time
}

// Store is the audit-log interface the daemon writes to. New returns a
// no-op Store for an empty DSN, so callers never need to branch on
// whether persistence is enabled.
type Store interface {
	RecordCheck(ctx context.Context, rec CheckRecord) error
	RecordCommand(ctx context.Context, rec CommandRecord) error
	RecentChecks(ctx context.Context, projectRoot string, limit int) ([]CheckRecord, error)
	Close() error
}

// noopStore implements Store with no persistence, used when no DSN is configured.
type noopStore struct{}

func (noopStore) RecordCheck(context.Context, CheckRecord) error     { return nil }
func (noopStore) RecordCommand(context.Context, CommandRecord) error { return nil }
func (noopStore) RecentChecks(context.Context, string, int) ([]CheckRecord, error) {
	return nil, nil
}
func (noopStore) Close() error { return nil }

// NewNoop returns a Store that discards everything written to it.
func NewNoop() Store { return noopStore{} }

// PostgresStore persists audit records to Postgres via a pgx pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// New creates a Store. If dsn is empty, it returns a no-op Store so the
// daemon can run without Postgres configured at all.
func New(ctx context.Context, dsn string) (Store, error) {
	if dsn == "" {
		return NewNoop(), nil
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}

	s := &PostgresStore{pool: pool}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS check_runs (
			id BIGSERIAL PRIMARY KEY,
			project_root TEXT NOT NULL,
			task_id BIGINT NOT NULL,
			kind TEXT NOT NULL,
			files TEXT[] NOT NULL DEFAULT '{}',
			score INTEGER NOT NULL,
			duration_ms BIGINT NOT NULL,
			completed_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_check_runs_project_time ON check_runs(project_root, completed_at DESC)`,
		`CREATE TABLE IF NOT EXISTS command_dispatches (
			id BIGSERIAL PRIMARY KEY,
			command TEXT NOT NULL,
			args TEXT[] NOT NULL DEFAULT '{}',
			success BOOLEAN NOT NULL,
			exit_code INTEGER NOT NULL DEFAULT 0,
			duration_ms BIGINT NOT NULL,
			dispatched_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_command_dispatches_time ON command_dispatches(dispatched_at DESC)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// RecordCheck inserts a completed check-task record.
func (s *PostgresStore) RecordCheck(ctx context.Context, rec CheckRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO check_runs (project_root, task_id, kind, files, score, duration_ms, completed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.ProjectRoot, rec.TaskID, rec.Kind, rec.Files, rec.Score, rec.DurationMs, rec.CompletedAt)
	return err
}

// RecordCommand inserts a completed command-dispatch record.
func (s *PostgresStore) RecordCommand(ctx context.Context, rec CommandRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO command_dispatches (command, args, success, exit_code, duration_ms, dispatched_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.Command, rec.Args, rec.Success, rec.ExitCode, rec.DurationMs, rec.DispatchedAt)
	return err
}

// RecentChecks returns the most recent check runs for projectRoot, newest first.
func (s *PostgresStore) RecentChecks(ctx context.Context, projectRoot string, limit int) ([]CheckRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, project_root, task_id, kind, files, score, duration_ms, completed_at
		 FROM check_runs WHERE project_root = $1 ORDER BY completed_at DESC LIMIT $2`,
		projectRoot, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CheckRecord
	for rows.Next() {
		var rec CheckRecord
		if err := rows.Scan(&rec.ID, &rec.ProjectRoot, &rec.TaskID, &rec.Kind, &rec.Files, &rec.Score, &rec.DurationMs, &rec.CompletedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Close releases the underlying connection pool.
func (s *PostgresStore) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// FromCheckResults builds a CheckRecord from a completed checkresult.Results.
func FromCheckResults(projectRoot string, taskID uint64, kind string, files []string, res checkresult.Results) CheckRecord {
	return CheckRecord{
		ProjectRoot: projectRoot,
		TaskID:      taskID,
		Kind:        kind,
		Files:       files,
		Score:       res.Score,
		DurationMs:  res.DurationMs,
		CompletedAt: res.CompletedAt,
	}
}
