package checkpoint

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/goccy/go-yaml"
	"github.com/loykin/rollout/internal/envs"
	"github.com/loykin/rollout/internal/store"
	"github.com/loykin/rollout/internal/vecenv"
)

// SnapshotLogger captures the fully-resolved run configuration exactly
// once, on the first step callback, and writes it to config.yaml in the
// run directory plus the run-tracking sink. Waiting for the first step
// ensures configuration resolved lazily inside the environments has
// actually been resolved.
type SnapshotLogger struct {
	pool   vecenv.Pool
	static map[string]any
	dir    string
	runID  string
	sink   store.Store
	log    *slog.Logger

	calls int
}

// NewSnapshotLogger builds the one-shot snapshot observer. static carries
// the orchestrator-side settings (learner hyperparameters, worker spec)
// that the environments cannot report themselves.
func NewSnapshotLogger(pool vecenv.Pool, static map[string]any, dir, runID string, sink store.Store, log *slog.Logger) *SnapshotLogger {
	return &SnapshotLogger{pool: pool, static: static, dir: dir, runID: runID, sink: sink, log: log}
}

// OnTrainingStart implements the step-observer contract.
func (s *SnapshotLogger) OnTrainingStart() error { return nil }

// OnStep fires only on the very first invocation; the call counter makes
// later invocations no-ops even though the callback runs every step.
func (s *SnapshotLogger) OnStep(int) error {
	s.calls++
	if s.calls != 1 {
		return nil
	}
	results, err := s.pool.EnvMethod(envs.MethodOperativeConfig, nil)
	if err != nil {
		return fmt.Errorf("resolve environment config: %w", err)
	}
	snapshot := map[string]any{}
	for k, v := range s.static {
		snapshot[k] = v
	}
	if len(results) > 0 {
		// All members share one configuration; the first is representative.
		snapshot["env"] = results[0]
	}
	out, err := yaml.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshal config snapshot: %w", err)
	}
	path := filepath.Join(s.dir, "config.yaml")
	if err := os.WriteFile(path, out, 0o600); err != nil {
		return fmt.Errorf("write config snapshot: %w", err)
	}
	if s.sink != nil {
		if err := s.sink.RecordSnapshot(context.Background(), s.runID, string(out)); err != nil {
			s.log.Warn("record config snapshot", "err", err)
		}
	}
	s.log.Info("saved configuration", "path", path)
	return nil
}

// Fired reports whether the snapshot has been written.
func (s *SnapshotLogger) Fired() bool { return s.calls >= 1 }
