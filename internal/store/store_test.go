package store

import (
	"context"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore("")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	if err := s.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	return s
}

func TestEnsureSchemaIdempotent(t *testing.T) {
	s := openTestStore(t)
	if err := s.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("second EnsureSchema: %v", err)
	}
}

func TestRecordRunAndCheckpoints(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	run := Run{
		ID:             "run-1",
		Name:           "policy_x",
		Path:           "/tmp/2024-03-09/policy_x_1",
		NbEnvs:         4,
		TotalTimesteps: 1_000_000,
		StartedAt:      time.Now(),
	}
	if err := s.RecordRun(ctx, run); err != nil {
		t.Fatalf("RecordRun: %v", err)
	}
	cps := []Checkpoint{
		{RunID: "run-1", Tag: "checkpoint_52500_steps", Step: 52_500, Path: "/tmp/a.json", CreatedAt: time.Now()},
		{RunID: "run-1", Tag: "final", Step: 0, Path: "/tmp/final.json", CreatedAt: time.Now()},
	}
	for _, cp := range cps {
		if err := s.RecordCheckpoint(ctx, cp); err != nil {
			t.Fatalf("RecordCheckpoint(%s): %v", cp.Tag, err)
		}
	}
	got, err := s.Checkpoints(ctx, "run-1")
	if err != nil {
		t.Fatalf("Checkpoints: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d checkpoints, want 2", len(got))
	}
	if got[len(got)-1].Tag != "final" {
		t.Fatalf("last tag = %s, want final", got[len(got)-1].Tag)
	}
}

func TestRecordCheckpointDuplicateTagFails(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	cp := Checkpoint{RunID: "run-1", Tag: "final", Path: "/tmp/final.json", CreatedAt: time.Now()}
	if err := s.RecordCheckpoint(ctx, cp); err != nil {
		t.Fatalf("RecordCheckpoint: %v", err)
	}
	// Checkpoints are immutable artifacts; a tag can only be recorded once.
	if err := s.RecordCheckpoint(ctx, cp); err == nil {
		t.Fatal("duplicate (run, tag) accepted")
	}
}

func TestRecordSnapshot(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	if err := s.RecordSnapshot(ctx, "run-1", "env: test\n"); err != nil {
		t.Fatalf("RecordSnapshot: %v", err)
	}
	// One snapshot per run.
	if err := s.RecordSnapshot(ctx, "run-1", "env: other\n"); err == nil {
		t.Fatal("second snapshot for the same run accepted")
	}
}
