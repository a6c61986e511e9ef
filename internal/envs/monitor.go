package envs

import (
	"log/slog"

	"github.com/loykin/rollout/internal/metrics"
)

// Monitor wraps an environment to track per-episode return and length,
// attaching them to the step info when an episode completes.
type Monitor struct {
	Environment
	run string
	log *slog.Logger

	episodeReturn float64
	episodeLength int
	episodes      int
}

// NewMonitor wraps env with episode bookkeeping for the named run.
func NewMonitor(env Environment, run string, log *slog.Logger) *Monitor {
	return &Monitor{Environment: env, run: run, log: log}
}

func (m *Monitor) Reset(seed int64) (Observation, error) {
	obs, err := m.Environment.Reset(seed)
	if err != nil {
		return nil, err
	}
	m.episodeReturn = 0
	m.episodeLength = 0
	return obs, nil
}

func (m *Monitor) Step(action Action) (Observation, float64, bool, Info, error) {
	obs, reward, done, info, err := m.Environment.Step(action)
	if err != nil {
		return nil, 0, false, nil, err
	}
	m.episodeReturn += reward
	m.episodeLength++
	if done {
		m.episodes++
		if info == nil {
			info = Info{}
		}
		info["episode"] = map[string]float64{
			"r": m.episodeReturn,
			"l": float64(m.episodeLength),
		}
		metrics.IncEpisode(m.run, m.episodeReturn)
		m.log.Debug("episode finished",
			"episodes", m.episodes,
			"return", m.episodeReturn,
			"length", m.episodeLength)
	}
	return obs, reward, done, info, nil
}

// Episodes returns how many episodes have completed since construction.
func (m *Monitor) Episodes() int { return m.episodes }
