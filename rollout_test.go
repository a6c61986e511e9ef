package rollout

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/loykin/rollout/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

func TestConfigHelpers(t *testing.T) {
	dir := t.TempDir()
	cfg := `
total_timesteps = 20000
spine_path = "/opt/spines/bullet_spine"

[env]
agent_frequency = 200
spine_frequency = 1000

[[curriculum]]
key = "pitch"
max_value = 0.1
start_step = 0
end_step = 10000
`
	p := filepath.Join(dir, "run.toml")
	if err := os.WriteFile(p, []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}
	config, err := LoadConfig(p)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if config.TotalTimesteps != 20000 {
		t.Fatalf("LoadConfig total_timesteps: %d", config.TotalTimesteps)
	}
	if len(config.Curriculum) != 1 {
		t.Fatalf("LoadConfig curriculum: len=%d", len(config.Curriculum))
	}
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("DefaultConfig invalid: %v", err)
	}
}

func TestTrainingRootOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("ROLLOUT_TRAINING_PATH", dir)
	if got := TrainingRoot(); got != dir {
		t.Fatalf("TrainingRoot = %s, want %s", got, dir)
	}
}

func TestSQLiteStoreFacade(t *testing.T) {
	s, err := NewSQLiteStore(context.Background(), "")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer func() { _ = s.Close() }()
	if err := s.RecordSnapshot(context.Background(), "run-1", "env: test\n"); err != nil {
		t.Fatalf("RecordSnapshot: %v", err)
	}
}

func TestLoggerHelper(t *testing.T) {
	log := NewLogger(slog.LevelInfo, nil)
	if log == nil {
		t.Fatal("NewLogger returned nil")
	}
	log.Info("facade logger smoke test")
}

func TestMetricsHelpers(t *testing.T) {
	// Register with the default registry first so the handler below sees
	// the collectors; a later custom-registry call is a no-op.
	if err := RegisterMetricsDefault(); err != nil {
		t.Fatalf("RegisterMetricsDefault: %v", err)
	}
	if err := RegisterMetrics(prometheus.NewRegistry()); err != nil {
		t.Fatalf("RegisterMetrics: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	h := metricsHandler()
	h.ServeHTTP(rr, req)
	if rr.Code != 200 {
		t.Fatalf("metrics handler status %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "rollout") {
		t.Fatalf("metrics output missing rollout prefix: %s", rr.Body.String())
	}
}

// metricsHandler returns the same handler ServeMetrics mounts on /metrics.
func metricsHandler() http.Handler {
	return metrics.Handler()
}
