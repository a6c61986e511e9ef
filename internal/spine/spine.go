// Package spine talks to one simulator ("spine") process over its
// shared-memory channel. The spine binary and its wire behavior are an
// external collaborator; this package only fixes the client-side contract
// the environments rely on.
package spine

// Observation is one spine-side reading of the robot state.
type Observation struct {
	Pitch           float64 `json:"pitch"`            // base pitch, rad
	Position        float64 `json:"position"`         // ground position, m
	AngularVelocity float64 `json:"angular_velocity"` // pitch rate, rad/s
	GroundVelocity  float64 `json:"ground_velocity"`  // ground velocity, m/s
}

// Action is the agent-side command for one control step.
type Action struct {
	GroundVelocity float64 `json:"ground_velocity"` // commanded ground velocity, m/s
}

// Spine is the per-worker simulator channel. All calls block until the
// spine has replied; an unresponsive spine surfaces as an error, never as
// a partial result.
type Spine interface {
	// Reset starts a new episode with the given spine-side configuration
	// (init randomization bounds included) and returns the first
	// observation.
	Reset(config map[string]any) (Observation, error)
	// Step applies the action for one agent step (nb-substeps spine ticks)
	// and returns the resulting observation.
	Step(action Action) (Observation, error)
	// Close releases the client side of the channel. The spine process
	// itself is owned and terminated by its worker handle, not by Close.
	Close() error
}

// Dialer connects to the spine listening on the named shared-memory
// channel. Environments are constructed with a Dialer so tests can swap
// in fakes without any process involvement.
type Dialer func(shmName string) (Spine, error)
