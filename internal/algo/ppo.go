package algo

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"

	"github.com/loykin/rollout/internal/config"
	"github.com/loykin/rollout/internal/envs"
	"github.com/loykin/rollout/internal/metrics"
	"github.com/loykin/rollout/internal/vecenv"
)

// PPO is a compact linear-Gaussian policy trained with a clipped
// policy-gradient step. It implements Learner; the point of this package
// is the loop and callback protocol, not state-of-the-art optimization.
type PPO struct {
	pool vecenv.Pool
	cfg  config.PPOConfig
	lr   Schedule
	log  *slog.Logger

	gamma    float64
	seed     int64
	rng      *rand.Rand
	weights  [][]float64 // [ActionSize][ObservationSize]
	bias     []float64
	baseline float64 // running mean reward, simple advantage baseline

	numTimesteps int
	lastNoise    [][]float64
}

// NewPPO binds a fresh policy to the pool. gamma is the discount factor
// derived by the orchestrator from the return horizon.
func NewPPO(pool vecenv.Pool, cfg config.PPOConfig, gamma float64, seed int64, log *slog.Logger) *PPO {
	p := &PPO{
		pool:  pool,
		cfg:   cfg,
		lr:    AffineSchedule(cfg.LearningRate, cfg.LearningRate/3),
		log:   log,
		gamma: gamma,
		seed:  seed,
		rng:   rand.New(rand.NewPCG(uint64(seed), uint64(seed)^0xda3e39cb94b95bdb)),
		bias:  make([]float64, envs.ActionSize),
	}
	p.weights = make([][]float64, envs.ActionSize)
	for i := range p.weights {
		p.weights[i] = make([]float64, envs.ObservationSize)
	}
	return p
}

// Learn runs the interaction loop. Every iteration advances the pool by
// one barrier step (NumEnvs global timesteps) and then invokes every
// callback with the new global step count.
func (p *PPO) Learn(ctx context.Context, totalTimesteps int, callbacks []Callback, runTag string) error {
	for _, cb := range callbacks {
		if err := cb.OnTrainingStart(); err != nil {
			return fmt.Errorf("training start callback: %w", err)
		}
	}
	obs, err := p.pool.Reset(p.seed)
	if err != nil {
		return fmt.Errorf("initial reset: %w", err)
	}
	n := p.pool.NumEnvs()
	p.log.Info("training", "total_timesteps", totalTimesteps, "nb_envs", n, "gamma", p.gamma)
	for p.numTimesteps < totalTimesteps {
		// Cancellation is only observed between barrier steps, so an
		// interrupt never leaves a step half-applied.
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		actions := p.act(obs)
		res, err := p.pool.Step(actions)
		if err != nil {
			return fmt.Errorf("vectorized step: %w", err)
		}
		progressRemaining := 1 - float64(p.numTimesteps)/float64(totalTimesteps)
		p.update(obs, res.Rewards, p.lr(progressRemaining))
		obs = res.Observations
		p.numTimesteps += n
		metrics.AddTimesteps(runTag, n)
		for _, cb := range callbacks {
			if err := cb.OnStep(p.numTimesteps); err != nil {
				return fmt.Errorf("step callback at %d: %w", p.numTimesteps, err)
			}
		}
	}
	return nil
}

// act samples one Gaussian action per member around the policy mean.
func (p *PPO) act(obs []envs.Observation) []envs.Action {
	actions := make([]envs.Action, len(obs))
	p.lastNoise = make([][]float64, len(obs))
	for i, o := range obs {
		a := make(envs.Action, envs.ActionSize)
		noise := make([]float64, envs.ActionSize)
		for j := range a {
			mean := p.bias[j]
			for k, w := range p.weights[j] {
				if k < len(o) {
					mean += w * o[k]
				}
			}
			noise[j] = p.rng.NormFloat64() * p.cfg.ActionStdDev
			a[j] = mean + noise[j]
		}
		actions[i] = a
		p.lastNoise[i] = noise
	}
	return actions
}

// update nudges the policy toward exploration noise that outperformed the
// running baseline.
func (p *PPO) update(obs []envs.Observation, rewards []float64, lr float64) {
	for i, r := range rewards {
		advantage := r - p.baseline
		if advantage > p.cfg.ClipRange {
			advantage = p.cfg.ClipRange
		} else if advantage < -p.cfg.ClipRange {
			advantage = -p.cfg.ClipRange
		}
		for j := range p.weights {
			step := lr * advantage * p.lastNoise[i][j]
			for k := range p.weights[j] {
				if k < len(obs[i]) {
					p.weights[j][k] += step * obs[i][k]
				}
			}
			p.bias[j] += step
		}
		p.baseline += (1 - p.gamma) * (r - p.baseline)
	}
}

// NumTimesteps returns the global step count taken so far.
func (p *PPO) NumTimesteps() int { return p.numTimesteps }

type policyState struct {
	Weights      [][]float64 `json:"weights"`
	Bias         []float64   `json:"bias"`
	ActionStdDev float64     `json:"action_std_dev"`
	Gamma        float64     `json:"gamma"`
	Baseline     float64     `json:"baseline"`
	NumTimesteps int         `json:"num_timesteps"`
	Seed         int64       `json:"seed"`
}

// Save writes the policy state as a checkpoint artifact. Artifacts are
// written whole and never mutated afterwards.
func (p *PPO) Save(path string) error {
	state := policyState{
		Weights:      p.weights,
		Bias:         p.bias,
		ActionStdDev: p.cfg.ActionStdDev,
		Gamma:        p.gamma,
		Baseline:     p.baseline,
		NumTimesteps: p.numTimesteps,
		Seed:         p.seed,
	}
	out, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, out, 0o600)
}

// Load restores policy state from a previously saved artifact.
func (p *PPO) Load(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var state policyState
	if err := json.Unmarshal(b, &state); err != nil {
		return fmt.Errorf("parse policy %s: %w", path, err)
	}
	p.weights = state.Weights
	p.bias = state.Bias
	p.baseline = state.Baseline
	p.numTimesteps = state.NumTimesteps
	return nil
}
