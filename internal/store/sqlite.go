package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store on an embedded SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the run-tracking database at path.
// An empty path uses an in-memory database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		path = ":memory:"
	}
	db, err := sql.Open("sqlite", path+"?_journal=WAL&_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite works best with a single connection.
	db.SetMaxOpenConns(1)
	s := &SQLiteStore{db: db}
	if err := db.PingContext(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite database: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) EnsureSchema(ctx context.Context) error {
	schemas := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			path TEXT NOT NULL,
			nb_envs INTEGER NOT NULL,
			total_timesteps INTEGER NOT NULL,
			started_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS checkpoints (
			run_id TEXT NOT NULL,
			tag TEXT NOT NULL,
			step INTEGER NOT NULL,
			path TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			PRIMARY KEY (run_id, tag)
		)`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			run_id TEXT PRIMARY KEY,
			snapshot TEXT NOT NULL
		)`,
	}
	for _, schema := range schemas {
		if _, err := s.db.ExecContext(ctx, schema); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) RecordRun(ctx context.Context, run Run) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, name, path, nb_envs, total_timesteps, started_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, run.Name, run.Path, run.NbEnvs, run.TotalTimesteps, run.StartedAt.UTC())
	if err != nil {
		return fmt.Errorf("record run %s: %w", run.Name, err)
	}
	return nil
}

func (s *SQLiteStore) RecordCheckpoint(ctx context.Context, cp Checkpoint) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO checkpoints (run_id, tag, step, path, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		cp.RunID, cp.Tag, cp.Step, cp.Path, cp.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("record checkpoint %s: %w", cp.Tag, err)
	}
	return nil
}

func (s *SQLiteStore) RecordSnapshot(ctx context.Context, runID string, snapshot string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO snapshots (run_id, snapshot) VALUES (?, ?)`,
		runID, snapshot)
	if err != nil {
		return fmt.Errorf("record snapshot for %s: %w", runID, err)
	}
	return nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

// Runs returns all recorded runs, most recent first.
func (s *SQLiteStore) Runs(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, path, nb_envs, total_timesteps, started_at FROM runs
		 ORDER BY started_at DESC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.Name, &r.Path, &r.NbEnvs, &r.TotalTimesteps, &r.StartedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Checkpoints returns the recorded checkpoints for a run in insertion
// order. Used by status tooling and tests.
func (s *SQLiteStore) Checkpoints(ctx context.Context, runID string) ([]Checkpoint, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, tag, step, path, created_at FROM checkpoints
		 WHERE run_id = ? ORDER BY created_at, step`, runID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []Checkpoint
	for rows.Next() {
		var cp Checkpoint
		if err := rows.Scan(&cp.RunID, &cp.Tag, &cp.Step, &cp.Path, &cp.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	return out, rows.Err()
}
