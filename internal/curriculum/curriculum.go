// Package curriculum ramps environment init-randomization bounds with
// training progress and keeps them synchronized across all workers.
package curriculum

import (
	"fmt"
	"log/slog"

	"github.com/loykin/rollout/internal/envs"
	"github.com/loykin/rollout/internal/metrics"
	"github.com/loykin/rollout/internal/vecenv"
)

// Schedule is a linear ramp for one parameter: zero at StartStep, MaxValue
// at EndStep, clamped outside that range.
type Schedule struct {
	Key       string
	MaxValue  float64
	StartStep int
	EndStep   int
}

// Value computes the progress-interpolated target at the given global
// step. The interpolation fraction is clamped to [0, 1] regardless of
// step-count overruns.
func (s Schedule) Value(step int) float64 {
	progress := float64(step-s.StartStep) / float64(s.EndStep-s.StartStep)
	if progress < 0 {
		progress = 0
	} else if progress > 1 {
		progress = 1
	}
	return progress * s.MaxValue
}

// Scheduler is a per-parameter step observer: after every global step it
// broadcasts the current value to every worker through the pool.
type Scheduler struct {
	pool     vecenv.Pool
	schedule Schedule
	run      string
	log      *slog.Logger
	last     float64
}

// NewScheduler tracks one schedule against the given pool.
func NewScheduler(pool vecenv.Pool, schedule Schedule, run string, log *slog.Logger) *Scheduler {
	return &Scheduler{pool: pool, schedule: schedule, run: run, log: log}
}

// OnTrainingStart implements the step-observer contract.
func (s *Scheduler) OnTrainingStart() error { return nil }

// OnStep broadcasts the value for the completed step. A broadcast failure
// is returned as-is: desynchronized curriculum bounds silently corrupt
// training data, so the run must stop.
func (s *Scheduler) OnStep(step int) error {
	value := s.schedule.Value(step)
	args := map[string]float64{s.schedule.Key: value}
	if _, err := s.pool.EnvMethod(envs.MethodUpdateInitRand, args); err != nil {
		return fmt.Errorf("curriculum broadcast %q: %w", s.schedule.Key, err)
	}
	metrics.SetCurriculum(s.run, s.schedule.Key, value)
	s.last = value
	return nil
}

// Last returns the most recently broadcast value.
func (s *Scheduler) Last() float64 { return s.last }

// Key returns the tracked parameter name.
func (s *Scheduler) Key() string { return s.schedule.Key }
