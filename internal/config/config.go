package config

import (
	"errors"
	"fmt"

	"github.com/loykin/rollout/internal/logger"
	"github.com/spf13/viper"
)

// ErrFrequencyRatio reports a spine/agent frequency pair that does not
// divide evenly. It is a fatal configuration error and is detected before
// any worker process is spawned.
var ErrFrequencyRatio = errors.New("spine frequency must be an integer multiple of agent frequency")

// EnvConfig describes one training environment and its spine.
type EnvConfig struct {
	EnvID              string             `toml:"env_id" mapstructure:"env_id"`
	AgentFrequency     int                `toml:"agent_frequency" mapstructure:"agent_frequency"`   // Hz
	SpineFrequency     int                `toml:"spine_frequency" mapstructure:"spine_frequency"`   // Hz
	MaxGroundVelocity  float64            `toml:"max_ground_velocity" mapstructure:"max_ground_velocity"` // m/s
	MaxEpisodeDuration float64            `toml:"max_episode_duration" mapstructure:"max_episode_duration"` // seconds
	FallPitch          float64            `toml:"fall_pitch" mapstructure:"fall_pitch"` // rad, episode terminates beyond this
	RewardWeights      map[string]float64 `toml:"reward_weights" mapstructure:"reward_weights"`
	SpineConfig        map[string]any     `toml:"spine_config" mapstructure:"spine_config"`
}

// PPOConfig carries the learner hyperparameters. Only the fields the loop
// itself consumes are interpreted here; the rest ride along into the
// config snapshot.
type PPOConfig struct {
	LearningRate  float64 `toml:"learning_rate" mapstructure:"learning_rate"`
	NSteps        int     `toml:"n_steps" mapstructure:"n_steps"`
	BatchSize     int     `toml:"batch_size" mapstructure:"batch_size"`
	NEpochs       int     `toml:"n_epochs" mapstructure:"n_epochs"`
	GAELambda     float64 `toml:"gae_lambda" mapstructure:"gae_lambda"`
	ClipRange     float64 `toml:"clip_range" mapstructure:"clip_range"`
	EntCoef       float64 `toml:"ent_coef" mapstructure:"ent_coef"`
	ActionStdDev  float64 `toml:"action_std_dev" mapstructure:"action_std_dev"`
	ReturnHorizon float64 `toml:"return_horizon" mapstructure:"return_horizon"` // seconds
}

// CurriculumConfig describes one ramped init-randomization bound.
type CurriculumConfig struct {
	Key       string  `toml:"key" mapstructure:"key"`
	MaxValue  float64 `toml:"max_value" mapstructure:"max_value"`
	StartStep int     `toml:"start_step" mapstructure:"start_step"`
	EndStep   int     `toml:"end_step" mapstructure:"end_step"`
}

// Config is the fully-resolved run configuration.
type Config struct {
	SpinePath      string             `toml:"spine_path" mapstructure:"spine_path"`
	TotalTimesteps int                `toml:"total_timesteps" mapstructure:"total_timesteps"`
	Env            EnvConfig          `toml:"env" mapstructure:"env"`
	PPO            PPOConfig          `toml:"ppo" mapstructure:"ppo"`
	Curriculum     []CurriculumConfig `toml:"curriculum" mapstructure:"curriculum"`
	Log            logger.Config      `toml:"log" mapstructure:"log"`
	StorePath      string             `toml:"store_path" mapstructure:"store_path"` // run-tracking sqlite, empty = <training_dir>/runs.db
}

// Default returns the coded defaults, matching the balancer's nominal
// settings. A config file overrides them field by field.
func Default() Config {
	return Config{
		SpinePath:      "bullet_spine",
		TotalTimesteps: 1_000_000,
		Env: EnvConfig{
			EnvID:              "GroundVelocityEnv-v1",
			AgentFrequency:     200,
			SpineFrequency:     1000,
			MaxGroundVelocity:  1.0,
			MaxEpisodeDuration: 10.0,
			FallPitch:          1.0,
			RewardWeights: map[string]float64{
				"position": 1.0,
				"velocity": 0.1,
			},
			SpineConfig: map[string]any{},
		},
		PPO: PPOConfig{
			LearningRate:  3e-4,
			NSteps:        2048,
			BatchSize:     64,
			NEpochs:       10,
			GAELambda:     0.95,
			ClipRange:     0.2,
			EntCoef:       0.0,
			ActionStdDev:  0.2,
			ReturnHorizon: 1.0,
		},
		Curriculum: []CurriculumConfig{
			{Key: "pitch", MaxValue: 0.1, StartStep: 0, EndStep: 100_000},
			{Key: "v_x", MaxValue: 0.1, StartStep: 0, EndStep: 100_000},
			{Key: "omega_y", MaxValue: 0.1, StartStep: 0, EndStep: 100_000},
		},
	}
}

// Load reads a TOML config file over the defaults. An empty path returns
// the defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, cfg.Validate()
	}
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate checks constraints that must hold before any worker is spawned.
func (c Config) Validate() error {
	if c.Env.AgentFrequency <= 0 || c.Env.SpineFrequency <= 0 {
		return fmt.Errorf("frequencies must be positive, got agent=%d spine=%d",
			c.Env.AgentFrequency, c.Env.SpineFrequency)
	}
	if c.Env.SpineFrequency%c.Env.AgentFrequency != 0 {
		return fmt.Errorf("%w: spine=%d agent=%d", ErrFrequencyRatio,
			c.Env.SpineFrequency, c.Env.AgentFrequency)
	}
	if c.TotalTimesteps <= 0 {
		return fmt.Errorf("total_timesteps must be positive, got %d", c.TotalTimesteps)
	}
	if c.Env.MaxEpisodeDuration <= 0 {
		return fmt.Errorf("max_episode_duration must be positive, got %f", c.Env.MaxEpisodeDuration)
	}
	if c.PPO.ReturnHorizon <= 0 {
		return fmt.Errorf("return_horizon must be positive, got %f", c.PPO.ReturnHorizon)
	}
	for _, cc := range c.Curriculum {
		if cc.Key == "" {
			return errors.New("curriculum entry missing key")
		}
		if cc.EndStep <= cc.StartStep {
			return fmt.Errorf("curriculum %q: end_step %d must exceed start_step %d",
				cc.Key, cc.EndStep, cc.StartStep)
		}
	}
	return nil
}

// NbSubsteps returns the number of spine substeps per agent step.
// Validate must have passed first.
func (c Config) NbSubsteps() int {
	return c.Env.SpineFrequency / c.Env.AgentFrequency
}

// DT returns the agent control timestep in seconds.
func (c Config) DT() float64 { return 1.0 / float64(c.Env.AgentFrequency) }

// Gamma derives the discount factor from the configured return horizon:
// gamma = 1 - dt/horizon.
func (c Config) Gamma() float64 { return 1.0 - c.DT()/c.PPO.ReturnHorizon }
