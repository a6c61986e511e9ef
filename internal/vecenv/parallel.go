package vecenv

import (
	"fmt"
	"sync"

	"github.com/loykin/rollout/internal/envs"
)

type opKind int

const (
	opReset opKind = iota
	opStep
	opCall
	opClose
)

type command struct {
	op     opKind
	seed   int64
	action envs.Action
	method string
	args   map[string]float64
	reply  chan result
}

type result struct {
	obs    envs.Observation
	reward float64
	done   bool
	info   envs.Info
	ret    any
	err    error
}

// Parallel schedules each member on its own long-lived goroutine while the
// simulation itself runs in that member's spine process. Batched calls fan
// a command out to every member and then collect replies in member order,
// so the call is a full barrier and results are index-stable regardless of
// which worker answers first.
type Parallel struct {
	cmds []chan command
	wg   sync.WaitGroup

	closeOnce sync.Once
	closeErr  error
}

// NewParallel constructs all members concurrently, one per goroutine; the
// same goroutine then serves that member's commands for the lifetime of
// the pool. If any maker fails, the successfully constructed members are
// closed and the error is returned.
func NewParallel(makers []Maker) (*Parallel, error) {
	n := len(makers)
	p := &Parallel{cmds: make([]chan command, n)}
	built := make([]error, n)
	var buildWG sync.WaitGroup
	for i := range makers {
		p.cmds[i] = make(chan command)
		buildWG.Add(1)
		p.wg.Add(1)
		go func(idx int, mk Maker) {
			env, err := mk()
			built[idx] = err
			buildWG.Done()
			if err != nil {
				p.wg.Done()
				return
			}
			p.serve(idx, env)
		}(i, makers[i])
	}
	buildWG.Wait()

	var firstErr error
	for i, err := range built {
		if err != nil && firstErr == nil {
			firstErr = fmt.Errorf("construct env %d: %w", i, err)
		}
	}
	if firstErr != nil {
		// Shut down the members that did come up.
		for i, err := range built {
			if err == nil {
				cmd := command{op: opClose, reply: make(chan result, 1)}
				p.cmds[i] <- cmd
				<-cmd.reply
			}
		}
		p.wg.Wait()
		return nil, firstErr
	}
	return p, nil
}

// serve owns one member environment until an opClose command arrives.
func (p *Parallel) serve(idx int, env envs.Environment) {
	defer p.wg.Done()
	for cmd := range p.cmds[idx] {
		var res result
		switch cmd.op {
		case opReset:
			res.obs, res.err = env.Reset(cmd.seed)
		case opStep:
			res.obs, res.reward, res.done, res.info, res.err = stepMember(env, cmd.action)
		case opCall:
			res.ret, res.err = env.Call(cmd.method, cmd.args)
		case opClose:
			res.err = env.Close()
			cmd.reply <- res
			return
		}
		cmd.reply <- res
	}
}

func (p *Parallel) NumEnvs() int { return len(p.cmds) }

// broadcast sends one command to every member and gathers replies in
// member order.
func (p *Parallel) broadcast(build func(i int) command) ([]result, error) {
	n := len(p.cmds)
	pending := make([]command, n)
	for i := 0; i < n; i++ {
		pending[i] = build(i)
		p.cmds[i] <- pending[i]
	}
	results := make([]result, n)
	var firstErr error
	for i := 0; i < n; i++ {
		results[i] = <-pending[i].reply
		if results[i].err != nil && firstErr == nil {
			firstErr = fmt.Errorf("env %d: %w", i, results[i].err)
		}
	}
	return results, firstErr
}

func (p *Parallel) Reset(seed int64) ([]envs.Observation, error) {
	results, err := p.broadcast(func(i int) command {
		memberSeed := seed
		if seed >= 0 {
			memberSeed = seed + int64(i)
		}
		return command{op: opReset, seed: memberSeed, reply: make(chan result, 1)}
	})
	if err != nil {
		return nil, err
	}
	out := make([]envs.Observation, len(results))
	for i, r := range results {
		out[i] = r.obs
	}
	return out, nil
}

func (p *Parallel) Step(actions []envs.Action) (StepResult, error) {
	if len(actions) != len(p.cmds) {
		return StepResult{}, fmt.Errorf("got %d actions for %d envs", len(actions), len(p.cmds))
	}
	results, err := p.broadcast(func(i int) command {
		return command{op: opStep, action: actions[i], reply: make(chan result, 1)}
	})
	if err != nil {
		return StepResult{}, err
	}
	res := newStepResult(len(results))
	for i, r := range results {
		res.Observations[i] = r.obs
		res.Rewards[i] = r.reward
		res.Dones[i] = r.done
		res.Infos[i] = r.info
	}
	return res, nil
}

func (p *Parallel) EnvMethod(method string, args map[string]float64) ([]any, error) {
	results, err := p.broadcast(func(i int) command {
		return command{op: opCall, method: method, args: args, reply: make(chan result, 1)}
	})
	if err != nil {
		return nil, err
	}
	out := make([]any, len(results))
	for i, r := range results {
		out[i] = r.ret
	}
	return out, nil
}

func (p *Parallel) Close() error {
	p.closeOnce.Do(func() {
		_, err := p.broadcast(func(i int) command {
			return command{op: opClose, reply: make(chan result, 1)}
		})
		p.closeErr = err
		p.wg.Wait()
	})
	return p.closeErr
}
