package vecenv

import (
	"fmt"

	"github.com/loykin/rollout/internal/envs"
)

// Sequential runs every member in the calling goroutine. It is the N=1
// flavor, where extra scheduling would buy nothing.
type Sequential struct {
	members []envs.Environment
	closed  bool
}

// NewSequential constructs all members in order, cleaning up the already
// constructed ones when a later maker fails.
func NewSequential(makers []Maker) (*Sequential, error) {
	members := make([]envs.Environment, 0, len(makers))
	for i, mk := range makers {
		env, err := mk()
		if err != nil {
			for _, m := range members {
				_ = m.Close()
			}
			return nil, fmt.Errorf("construct env %d: %w", i, err)
		}
		members = append(members, env)
	}
	return &Sequential{members: members}, nil
}

func (s *Sequential) NumEnvs() int { return len(s.members) }

func (s *Sequential) Reset(seed int64) ([]envs.Observation, error) {
	out := make([]envs.Observation, len(s.members))
	for i, env := range s.members {
		memberSeed := seed
		if seed >= 0 {
			memberSeed = seed + int64(i)
		}
		obs, err := env.Reset(memberSeed)
		if err != nil {
			return nil, fmt.Errorf("env %d reset: %w", i, err)
		}
		out[i] = obs
	}
	return out, nil
}

func (s *Sequential) Step(actions []envs.Action) (StepResult, error) {
	if len(actions) != len(s.members) {
		return StepResult{}, fmt.Errorf("got %d actions for %d envs", len(actions), len(s.members))
	}
	res := newStepResult(len(s.members))
	for i, env := range s.members {
		obs, reward, done, info, err := stepMember(env, actions[i])
		if err != nil {
			return StepResult{}, fmt.Errorf("env %d step: %w", i, err)
		}
		res.Observations[i] = obs
		res.Rewards[i] = reward
		res.Dones[i] = done
		res.Infos[i] = info
	}
	return res, nil
}

func (s *Sequential) EnvMethod(method string, args map[string]float64) ([]any, error) {
	out := make([]any, len(s.members))
	for i, env := range s.members {
		ret, err := env.Call(method, args)
		if err != nil {
			return nil, fmt.Errorf("env %d %s: %w", i, method, err)
		}
		out[i] = ret
	}
	return out, nil
}

func (s *Sequential) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	var firstErr error
	for i, env := range s.members {
		if err := env.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("env %d close: %w", i, err)
		}
	}
	return firstErr
}

func newStepResult(n int) StepResult {
	return StepResult{
		Observations: make([]envs.Observation, n),
		Rewards:      make([]float64, n),
		Dones:        make([]bool, n),
		Infos:        make([]envs.Info, n),
	}
}
