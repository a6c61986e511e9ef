package envs

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/loykin/rollout/internal/config"
	"github.com/loykin/rollout/internal/spine"
	"github.com/loykin/rollout/internal/worker"
)

// Factory produces "one worker, one environment" units for a vectorized
// pool. Each Make call spawns a fresh spine process, waits for its channel
// to come up, and only then constructs the environment, so the first
// interaction never blocks on a dead channel.
type Factory struct {
	Env          config.EnvConfig
	Worker       worker.Spec
	Registry     *worker.Registry
	Dial         spine.Dialer
	Seed         int64
	TeardownWait time.Duration
	Run          string
	Log          *slog.Logger
}

// Make builds one environment bound to one freshly spawned worker. The
// returned environment's Close tears the worker down before releasing the
// wrapped resources; a construction failure after spawn cleans up the
// worker through the same teardown path.
func (f Factory) Make() (Environment, error) {
	wait := f.TeardownWait
	if wait <= 0 {
		wait = worker.DefaultTeardownWait
	}
	h := worker.New(f.Worker, f.Registry, f.Log)
	sp, err := f.dialSpawned(h)
	if err != nil {
		_ = h.Teardown(wait)
		return nil, err
	}
	env := NewGroundVelocity(f.Env, sp)
	if _, err := env.Reset(f.Seed); err != nil {
		_ = env.Close()
		_ = h.Teardown(wait)
		return nil, fmt.Errorf("first reset of %s: %w", h.ShmName(), err)
	}
	monitored := NewMonitor(env, f.Run, f.Log)
	return WithTeardown(monitored, func() error {
		return h.Teardown(wait)
	}), nil
}

func (f Factory) dialSpawned(h *worker.Handle) (spine.Spine, error) {
	if err := h.Spawn(); err != nil {
		return nil, err
	}
	sp, err := f.Dial(h.ShmName())
	if err != nil {
		return nil, fmt.Errorf("dial spine %s: %w", h.ShmName(), err)
	}
	return sp, nil
}
