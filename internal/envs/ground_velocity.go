package envs

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/loykin/rollout/internal/config"
	"github.com/loykin/rollout/internal/spine"
)

// MethodUpdateInitRand is the broadcast target used by curriculum
// schedulers to ramp init-randomization bounds.
const MethodUpdateInitRand = "update_init_rand"

// MethodOperativeConfig returns the fully-resolved environment
// configuration. It only becomes complete after the first reset.
const MethodOperativeConfig = "operative_config"

// InitRandomization bounds the sampled initial state of each episode.
// Values are half-widths of uniform distributions around the nominal
// upright state.
type InitRandomization struct {
	Pitch  float64 // rad
	VX     float64 // m/s
	OmegaY float64 // rad/s
}

// GroundVelocity is the wheeled-balancing environment: the agent commands
// a ground velocity and is rewarded for keeping the base upright and near
// the origin.
type GroundVelocity struct {
	cfg      config.EnvConfig
	spine    spine.Spine
	rng      *rand.Rand
	initRand InitRandomization

	maxSteps  int
	steps     int
	resetOnce bool
	closed    bool
}

// NewGroundVelocity binds an environment to an already-live spine channel.
func NewGroundVelocity(cfg config.EnvConfig, sp spine.Spine) *GroundVelocity {
	return &GroundVelocity{
		cfg:      cfg,
		spine:    sp,
		maxSteps: int(cfg.MaxEpisodeDuration * float64(cfg.AgentFrequency)),
	}
}

func (e *GroundVelocity) Reset(seed int64) (Observation, error) {
	if e.closed {
		return nil, fmt.Errorf("reset on closed environment")
	}
	if seed >= 0 || e.rng == nil {
		s := uint64(seed)
		e.rng = rand.New(rand.NewPCG(s, s^0x9e3779b97f4a7c15))
	}
	cfg := map[string]any{
		"init_pitch":   e.sample(e.initRand.Pitch),
		"init_v_x":     e.sample(e.initRand.VX),
		"init_omega_y": e.sample(e.initRand.OmegaY),
	}
	for k, v := range e.cfg.SpineConfig {
		cfg[k] = v
	}
	obs, err := e.spine.Reset(cfg)
	if err != nil {
		return nil, fmt.Errorf("spine reset: %w", err)
	}
	e.steps = 0
	e.resetOnce = true
	return e.observe(obs), nil
}

func (e *GroundVelocity) Step(action Action) (Observation, float64, bool, Info, error) {
	if e.closed {
		return nil, 0, false, nil, fmt.Errorf("step on closed environment")
	}
	if !e.resetOnce {
		return nil, 0, false, nil, fmt.Errorf("step before first reset")
	}
	cmd := 0.0
	if len(action) > 0 {
		cmd = clamp(action[0], -e.cfg.MaxGroundVelocity, e.cfg.MaxGroundVelocity)
	}
	obs, err := e.spine.Step(spine.Action{GroundVelocity: cmd})
	if err != nil {
		return nil, 0, false, nil, fmt.Errorf("spine step: %w", err)
	}
	e.steps++
	fallen := math.Abs(obs.Pitch) > e.cfg.FallPitch
	truncated := e.steps >= e.maxSteps
	done := fallen || truncated
	info := Info{}
	if truncated && !fallen {
		info["TimeLimit.truncated"] = true
	}
	return e.observe(obs), e.reward(obs, cmd), done, info, nil
}

// Call dispatches mid-run environment methods. Unknown methods are an
// error so curriculum typos fail loudly instead of silently desyncing.
func (e *GroundVelocity) Call(method string, args map[string]float64) (any, error) {
	switch method {
	case MethodUpdateInitRand:
		for key, value := range args {
			switch key {
			case "pitch":
				e.initRand.Pitch = value
			case "v_x":
				e.initRand.VX = value
			case "omega_y":
				e.initRand.OmegaY = value
			default:
				return nil, fmt.Errorf("unknown init randomization key %q", key)
			}
		}
		return nil, nil
	case MethodOperativeConfig:
		return e.OperativeConfig(), nil
	default:
		return nil, fmt.Errorf("unknown environment method %q", method)
	}
}

// OperativeConfig reports the resolved environment configuration,
// including values only determinate once construction has run.
func (e *GroundVelocity) OperativeConfig() map[string]any {
	return map[string]any{
		"env_id":               e.cfg.EnvID,
		"agent_frequency":      e.cfg.AgentFrequency,
		"spine_frequency":      e.cfg.SpineFrequency,
		"max_ground_velocity":  e.cfg.MaxGroundVelocity,
		"max_episode_steps":    e.maxSteps,
		"max_episode_duration": e.cfg.MaxEpisodeDuration,
		"fall_pitch":           e.cfg.FallPitch,
		"reward_weights":       e.cfg.RewardWeights,
		"spine_config":         e.cfg.SpineConfig,
		"constructed":          e.resetOnce,
	}
}

func (e *GroundVelocity) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true
	return e.spine.Close()
}

func (e *GroundVelocity) observe(o spine.Observation) Observation {
	return Observation{o.Pitch, o.Position, o.AngularVelocity, o.GroundVelocity}
}

// reward: an alive bonus minus weighted position and velocity penalties.
func (e *GroundVelocity) reward(o spine.Observation, cmd float64) float64 {
	wp := e.cfg.RewardWeights["position"]
	wv := e.cfg.RewardWeights["velocity"]
	return 1.0 - wp*o.Position*o.Position - wv*cmd*cmd
}

func (e *GroundVelocity) sample(bound float64) float64 {
	if bound == 0 || e.rng == nil {
		return 0
	}
	return (2*e.rng.Float64() - 1) * bound
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
