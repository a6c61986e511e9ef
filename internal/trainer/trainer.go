// Package trainer is the top-level driver of one training run: it
// resolves the run's name and output directory, builds the vectorized
// pool, drives the learner, and guarantees the final-save-then-teardown
// sequence on every exit path.
package trainer

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/loykin/rollout/internal/algo"
	"github.com/loykin/rollout/internal/checkpoint"
	"github.com/loykin/rollout/internal/config"
	"github.com/loykin/rollout/internal/curriculum"
	"github.com/loykin/rollout/internal/envs"
	"github.com/loykin/rollout/internal/run"
	"github.com/loykin/rollout/internal/spine"
	"github.com/loykin/rollout/internal/store"
	"github.com/loykin/rollout/internal/vecenv"
	"github.com/loykin/rollout/internal/worker"
)

// Options configures one training run.
type Options struct {
	// Name of the new policy; empty picks a random word.
	Name string
	// NbEnvs is the number of parallel simulation workers.
	NbEnvs int
	// Show forwards the simulator GUI flag to every spine.
	Show bool
	// Config is the fully-loaded run configuration.
	Config config.Config
	// TrainingRoot overrides run.Root() when non-empty.
	TrainingRoot string
	// Dial overrides the spine dialer; nil uses the shared-memory client.
	Dial spine.Dialer
	// Sink is the optional run-tracking store.
	Sink store.Store
	// Seed fixes the run seed when non-negative; negative draws one.
	Seed int64
	// Log is required.
	Log *slog.Logger
}

// Train executes one full training run and returns the run's save path.
// A user interrupt stops the loop cleanly, still writes the final policy
// artifact, and is not reported as an error. Configuration and
// worker-lifecycle errors are returned after the guaranteed cleanup
// sequence has run.
func Train(ctx context.Context, opts Options) (string, error) {
	cfg := opts.Config
	if err := cfg.Validate(); err != nil {
		return "", err
	}
	if opts.NbEnvs <= 0 {
		opts.NbEnvs = 1
	}
	log := opts.Log
	registry := worker.NewRegistry()

	name := opts.Name
	if name == "" {
		name = registry.RandomWord()
	}
	root := opts.TrainingRoot
	if root == "" {
		root = run.Root()
	}
	trainingDir := run.TrainingDir(root, time.Now())
	savePath, err := run.FindSavePath(trainingDir, name)
	if err != nil {
		return "", err
	}
	log.Info("new policy", "name", name)
	log.Info("training data will be logged", "path", savePath)

	seed := opts.Seed
	if seed < 0 {
		seed = rand.Int64N(1_000_000)
	}
	dial := opts.Dial
	if dial == nil {
		dial = spine.Dial
	}

	workerSpec := worker.Spec{
		SpinePath:      cfg.SpinePath,
		NbSubsteps:     cfg.NbSubsteps(),
		SpineFrequency: cfg.Env.SpineFrequency,
		Show:           opts.Show,
	}
	makers := make([]vecenv.Maker, opts.NbEnvs)
	for i := 0; i < opts.NbEnvs; i++ {
		f := envs.Factory{
			Env:      cfg.Env,
			Worker:   workerSpec,
			Registry: registry,
			Dial:     dial,
			Seed:     seed + int64(i),
			Run:      name,
			Log:      log,
		}
		makers[i] = f.Make
	}
	pool, err := vecenv.New(makers)
	if err != nil {
		return "", fmt.Errorf("build vectorized pool: %w", err)
	}
	// Teardown runs last, after the final save below (defers are LIFO).
	defer func() {
		if cerr := pool.Close(); cerr != nil {
			log.Warn("pool close", "err", cerr)
		}
	}()

	// Warm-up round trip so lazily-resolved environment configuration is
	// fully determinate before the snapshot logger can fire.
	if _, err := pool.EnvMethod(envs.MethodOperativeConfig, nil); err != nil {
		return "", fmt.Errorf("warm-up: %w", err)
	}

	gamma := cfg.Gamma()
	log.Info("discount factor", "gamma", gamma, "return_horizon_s", cfg.PPO.ReturnHorizon)
	learner := algo.NewPPO(pool, cfg.PPO, gamma, seed, log)

	runID := uuid.NewString()
	if opts.Sink != nil {
		rec := store.Run{
			ID:             runID,
			Name:           name,
			Path:           savePath,
			NbEnvs:         opts.NbEnvs,
			TotalTimesteps: cfg.TotalTimesteps,
			StartedAt:      time.Now(),
		}
		if err := opts.Sink.RecordRun(ctx, rec); err != nil {
			log.Warn("record run", "err", err)
		}
	}

	manager := checkpoint.NewManager(learner, savePath, runID, opts.NbEnvs, opts.Sink, log)
	// The final save must happen on every exit path, before pool teardown.
	defer func() {
		if serr := manager.FinalSave(); serr != nil {
			log.Error("final save", "err", serr)
		}
	}()

	static := map[string]any{
		"policy": name,
		"ppo":    cfg.PPO,
		"spine": map[string]any{
			"path":        cfg.SpinePath,
			"nb_substeps": cfg.NbSubsteps(),
			"frequency":   cfg.Env.SpineFrequency,
			"show":        opts.Show,
		},
		"seed":    seed,
		"nb_envs": opts.NbEnvs,
	}
	snapshot := checkpoint.NewSnapshotLogger(pool, static, savePath, runID, opts.Sink, log)

	callbacks := []algo.Callback{manager, snapshot}
	for _, cc := range cfg.Curriculum {
		sched := curriculum.Schedule{
			Key:       cc.Key,
			MaxValue:  cc.MaxValue,
			StartStep: cc.StartStep,
			EndStep:   cc.EndStep,
		}
		callbacks = append(callbacks, curriculum.NewScheduler(pool, sched, name, log))
	}

	// An interrupt converts the loop into a clean stop; it never
	// propagates past this scope.
	loopCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := learner.Learn(loopCtx, cfg.TotalTimesteps, callbacks, name); err != nil {
		return savePath, fmt.Errorf("training run %s: %w", name, err)
	}
	if loopCtx.Err() != nil {
		log.Info("training interrupted")
	}
	return savePath, nil
}
