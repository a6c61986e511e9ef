// Package store persists run-tracking records: one row per training run,
// one per checkpoint artifact, and the run's config snapshot.
package store

import (
	"context"
	"time"
)

// Run is the tracking record for one training session.
type Run struct {
	ID             string
	Name           string
	Path           string
	NbEnvs         int
	TotalTimesteps int
	StartedAt      time.Time
}

// Checkpoint records one persisted policy artifact. Tag is the step count
// rendered as the artifact name, or "final" for the terminal save.
type Checkpoint struct {
	RunID     string
	Tag       string
	Step      int
	Path      string
	CreatedAt time.Time
}

// Store is the run-tracking sink. Implementations must be safe for use
// from a single goroutine; the orchestrator serializes all writes.
type Store interface {
	EnsureSchema(ctx context.Context) error
	RecordRun(ctx context.Context, run Run) error
	RecordCheckpoint(ctx context.Context, cp Checkpoint) error
	RecordSnapshot(ctx context.Context, runID string, snapshot string) error
	Close() error
}
