// Package vecenv aggregates N single-worker environments behind one
// batched step/reset interface. Every batched call is a full barrier:
// it returns only when all members have responded, with results at index
// i always belonging to environment i.
package vecenv

import (
	"fmt"

	"github.com/loykin/rollout/internal/envs"
)

// StepResult is one batched step across all members.
type StepResult struct {
	Observations []envs.Observation
	Rewards      []float64
	Dones        []bool
	Infos        []envs.Info
}

// Pool is the vectorized environment interface consumed by the learner
// and the step observers.
type Pool interface {
	// NumEnvs returns the number of member environments.
	NumEnvs() int
	// Reset starts a new episode in every member. Member i is seeded
	// with seed+i; a negative seed keeps each member's current stream.
	Reset(seed int64) ([]envs.Observation, error)
	// Step applies actions[i] to member i. Members that finish an
	// episode auto-reset; the terminal observation is preserved in
	// Infos[i]["terminal_observation"].
	Step(actions []envs.Action) (StepResult, error)
	// EnvMethod broadcasts a named call to every member and returns the
	// N results in member order.
	EnvMethod(method string, args map[string]float64) ([]any, error)
	// Close closes every member, cascading to worker teardown. Safe to
	// call more than once.
	Close() error
}

// Maker lazily constructs one member environment.
type Maker func() (envs.Environment, error)

// New builds a pool from the given makers: a Sequential pool for a single
// member, a Parallel pool otherwise.
func New(makers []Maker) (Pool, error) {
	switch {
	case len(makers) == 0:
		return nil, fmt.Errorf("vecenv: need at least one environment")
	case len(makers) == 1:
		return NewSequential(makers)
	default:
		return NewParallel(makers)
	}
}

// stepMember advances one member with the auto-reset convention shared by
// both pool flavors.
func stepMember(env envs.Environment, action envs.Action) (envs.Observation, float64, bool, envs.Info, error) {
	obs, reward, done, info, err := env.Step(action)
	if err != nil {
		return nil, 0, false, nil, err
	}
	if done {
		if info == nil {
			info = envs.Info{}
		}
		info["terminal_observation"] = obs
		obs, err = env.Reset(-1)
		if err != nil {
			return nil, 0, false, nil, fmt.Errorf("auto-reset: %w", err)
		}
	}
	return obs, reward, done, info, nil
}
