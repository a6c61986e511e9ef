package config

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultValidates(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestValidateFrequencyRatio(t *testing.T) {
	cfg := Default()
	cfg.Env.SpineFrequency = 1000
	cfg.Env.AgentFrequency = 300 // does not divide evenly
	err := cfg.Validate()
	if !errors.Is(err, ErrFrequencyRatio) {
		t.Fatalf("Validate = %v, want ErrFrequencyRatio", err)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero agent frequency", func(c *Config) { c.Env.AgentFrequency = 0 }},
		{"negative timesteps", func(c *Config) { c.TotalTimesteps = -1 }},
		{"zero episode duration", func(c *Config) { c.Env.MaxEpisodeDuration = 0 }},
		{"zero return horizon", func(c *Config) { c.PPO.ReturnHorizon = 0 }},
		{"curriculum without key", func(c *Config) { c.Curriculum[0].Key = "" }},
		{"curriculum inverted steps", func(c *Config) {
			c.Curriculum[0].StartStep = 100
			c.Curriculum[0].EndStep = 100
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("Validate accepted invalid config")
			}
		})
	}
}

func TestNbSubstepsAndGamma(t *testing.T) {
	cfg := Default()
	cfg.Env.SpineFrequency = 1000
	cfg.Env.AgentFrequency = 200
	if got := cfg.NbSubsteps(); got != 5 {
		t.Fatalf("NbSubsteps = %d, want 5", got)
	}
	cfg.PPO.ReturnHorizon = 1.0
	want := 1.0 - (1.0/200.0)/1.0
	if got := cfg.Gamma(); math.Abs(got-want) > 1e-12 {
		t.Fatalf("Gamma = %f, want %f", got, want)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.toml")
	content := `
total_timesteps = 5000
spine_path = "/opt/spines/bullet_spine"

[env]
agent_frequency = 100
spine_frequency = 1000

[ppo]
learning_rate = 0.001

[[curriculum]]
key = "pitch"
max_value = 0.2
start_step = 0
end_step = 50000
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.TotalTimesteps != 5000 {
		t.Fatalf("TotalTimesteps = %d, want 5000", cfg.TotalTimesteps)
	}
	if cfg.SpinePath != "/opt/spines/bullet_spine" {
		t.Fatalf("SpinePath = %s", cfg.SpinePath)
	}
	if cfg.Env.AgentFrequency != 100 {
		t.Fatalf("AgentFrequency = %d, want 100", cfg.Env.AgentFrequency)
	}
	if cfg.PPO.LearningRate != 0.001 {
		t.Fatalf("LearningRate = %f, want 0.001", cfg.PPO.LearningRate)
	}
	if len(cfg.Curriculum) != 1 || cfg.Curriculum[0].MaxValue != 0.2 {
		t.Fatalf("Curriculum = %+v", cfg.Curriculum)
	}
	// Untouched defaults survive the overlay.
	if cfg.Env.EnvID != "GroundVelocityEnv-v1" {
		t.Fatalf("EnvID = %s, want default", cfg.Env.EnvID)
	}
}

func TestLoadInvalidFileFailsValidation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	content := "[env]\nagent_frequency = 300\nspine_frequency = 1000\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); !errors.Is(err, ErrFrequencyRatio) {
		t.Fatalf("Load = %v, want ErrFrequencyRatio", err)
	}
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.TotalTimesteps != Default().TotalTimesteps {
		t.Fatal("empty path did not return defaults")
	}
}
