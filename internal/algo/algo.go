// Package algo hosts the learning algorithm behind a narrow interface.
// The training orchestrator only depends on Learner and Callback; policy
// internals are deliberately small and replaceable.
package algo

import "context"

// Callback observes the training loop. OnStep receives the global
// timestep count after each completed vectorized step; returning an error
// aborts the run.
type Callback interface {
	OnTrainingStart() error
	OnStep(step int) error
}

// Learner drives the interaction loop against a vectorized environment.
type Learner interface {
	// Learn runs until totalTimesteps global steps have been taken or
	// ctx is cancelled. Cancellation is a clean stop, not an error: the
	// in-flight step completes and Learn returns nil.
	Learn(ctx context.Context, totalTimesteps int, callbacks []Callback, runTag string) error
	// Save persists the current policy state as a named artifact.
	Save(path string) error
}

// Schedule maps remaining progress (1 at start, 0 at the end of training)
// to a hyperparameter value.
type Schedule func(progressRemaining float64) float64

// AffineSchedule interpolates linearly from y1 (progressRemaining = 1) to
// y0 (progressRemaining = 0).
func AffineSchedule(y1, y0 float64) Schedule {
	return func(progressRemaining float64) float64 {
		return y0 + progressRemaining*(y1-y0)
	}
}
