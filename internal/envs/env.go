// Package envs implements the balancing environments the learner trains
// against. One environment wraps exactly one spine worker.
package envs

// Observation is a flat feature vector: [pitch, ground position, pitch
// rate, ground velocity].
type Observation []float64

// Action is the agent command vector; index 0 is the commanded ground
// velocity.
type Action []float64

// Info carries per-step side data (episode stats, terminal observations).
type Info map[string]any

// Environment is the single-worker step/reset contract. Implementations
// are owned by one goroutine at a time; calls are never concurrent.
type Environment interface {
	// Reset starts a new episode and returns the initial observation.
	Reset(seed int64) (Observation, error)
	// Step advances one control step. done reports episode end, whether
	// terminated (fall) or truncated (episode length bound).
	Step(action Action) (obs Observation, reward float64, done bool, info Info, err error)
	// Call invokes a named environment method with keyword arguments.
	// It exists for mid-run broadcasts such as curriculum updates.
	Call(method string, args map[string]float64) (any, error)
	// Close releases the environment and everything it owns.
	Close() error
}

// ObservationSize is the length of the observation vector.
const ObservationSize = 4

// ActionSize is the length of the action vector.
const ActionSize = 1
