package rollout

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/loykin/rollout/internal/config"
	"github.com/loykin/rollout/internal/logger"
	"github.com/loykin/rollout/internal/metrics"
	"github.com/loykin/rollout/internal/run"
	"github.com/loykin/rollout/internal/store"
	"github.com/loykin/rollout/internal/trainer"
	"github.com/prometheus/client_golang/prometheus"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Config = config.Config

type TrainOptions = trainer.Options

type Store = store.Store

// DefaultConfig returns the coded default run configuration.
func DefaultConfig() Config { return config.Default() }

// LoadConfig reads a TOML config file over the defaults; an empty path
// yields the defaults.
func LoadConfig(path string) (Config, error) { return config.Load(path) }

// Train executes one training run and returns its save path. See
// trainer.Train for the interrupt and cleanup guarantees.
func Train(ctx context.Context, opts TrainOptions) (string, error) {
	return trainer.Train(ctx, opts)
}

// TrainingRoot returns the training-root directory, honoring the
// ROLLOUT_TRAINING_PATH override.
func TrainingRoot() string { return run.Root() }

// NewSQLiteStore opens the run-tracking database at path, creating the
// schema if needed.
func NewSQLiteStore(ctx context.Context, path string) (Store, error) {
	s, err := store.NewSQLiteStore(path)
	if err != nil {
		return nil, err
	}
	if err := s.EnsureSchema(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// NewLogger builds the run logger: colored console output plus an
// optional plain-text writer.
func NewLogger(level slog.Level, w io.Writer) *slog.Logger { return logger.New(level, w) }

// LogWriter returns the rotating file writer for the given logging
// configuration, or nil when no file destination is configured.
func LogWriter(cfg Config, name string) io.WriteCloser { return cfg.Log.Writer(name) }

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }

// ServeMetrics starts an HTTP server on addr exposing /metrics using the
// default registry. It returns any immediate listen error; otherwise it
// runs the server in the caller goroutine.
func ServeMetrics(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv.ListenAndServe()
}
