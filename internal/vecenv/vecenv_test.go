package vecenv

import (
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/loykin/rollout/internal/envs"
)

// fakeEnv returns its own index as observation and reward so index
// stability is directly checkable. delay slows the member down to shake
// out ordering assumptions.
type fakeEnv struct {
	idx      int
	delay    time.Duration
	doneIn   int // steps until done, 0 = never
	steps    int
	resets   int32
	closes   int32
	stepErr  error
	callErr  error
	lastArgs map[string]float64
}

func (f *fakeEnv) Reset(seed int64) (envs.Observation, error) {
	atomic.AddInt32(&f.resets, 1)
	f.steps = 0
	return envs.Observation{float64(f.idx), float64(seed)}, nil
}

func (f *fakeEnv) Step(envs.Action) (envs.Observation, float64, bool, envs.Info, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.stepErr != nil {
		return nil, 0, false, nil, f.stepErr
	}
	f.steps++
	done := f.doneIn > 0 && f.steps >= f.doneIn
	return envs.Observation{float64(f.idx)}, float64(f.idx), done, envs.Info{}, nil
}

func (f *fakeEnv) Call(method string, args map[string]float64) (any, error) {
	if f.callErr != nil {
		return nil, f.callErr
	}
	f.lastArgs = args
	return fmt.Sprintf("%s@%d", method, f.idx), nil
}

func (f *fakeEnv) Close() error {
	atomic.AddInt32(&f.closes, 1)
	return nil
}

func makersFor(fakes []*fakeEnv) []Maker {
	makers := make([]Maker, len(fakes))
	for i, f := range fakes {
		env := f
		makers[i] = func() (envs.Environment, error) { return env, nil }
	}
	return makers
}

func newFakes(n int) []*fakeEnv {
	fakes := make([]*fakeEnv, n)
	for i := range fakes {
		fakes[i] = &fakeEnv{idx: i}
	}
	return fakes
}

func TestNewPicksFlavor(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Fatal("empty pool constructed")
	}
	p1, err := New(makersFor(newFakes(1)))
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := p1.(*Sequential); !ok {
		t.Fatalf("N=1 pool is %T, want *Sequential", p1)
	}
	p3, err := New(makersFor(newFakes(3)))
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := p3.(*Parallel); !ok {
		t.Fatalf("N=3 pool is %T, want *Parallel", p3)
	}
	_ = p1.Close()
	_ = p3.Close()
}

func TestPoolsConstructCloseLeaveNothing(t *testing.T) {
	for _, n := range []int{1, 2, 5} {
		fakes := newFakes(n)
		pool, err := New(makersFor(fakes))
		if err != nil {
			t.Fatalf("N=%d: %v", n, err)
		}
		if pool.NumEnvs() != n {
			t.Fatalf("NumEnvs = %d, want %d", pool.NumEnvs(), n)
		}
		if err := pool.Close(); err != nil {
			t.Fatalf("N=%d Close: %v", n, err)
		}
		for i, f := range fakes {
			if got := atomic.LoadInt32(&f.closes); got != 1 {
				t.Fatalf("N=%d env %d closed %d times, want 1", n, i, got)
			}
		}
		// Close must be safe to call again.
		if err := pool.Close(); err != nil {
			t.Fatalf("N=%d second Close: %v", n, err)
		}
	}
}

func TestParallelStepIndexStable(t *testing.T) {
	fakes := newFakes(3)
	fakes[1].delay = 50 * time.Millisecond // worker 1 answers last
	pool, err := NewParallel(makersFor(fakes))
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = pool.Close() }()

	actions := []envs.Action{{0}, {0}, {0}}
	for iter := 0; iter < 3; iter++ {
		res, err := pool.Step(actions)
		if err != nil {
			t.Fatalf("Step: %v", err)
		}
		for i := range fakes {
			if res.Observations[i][0] != float64(i) {
				t.Fatalf("iter %d: observation at index %d came from env %v",
					iter, i, res.Observations[i][0])
			}
			if res.Rewards[i] != float64(i) {
				t.Fatalf("iter %d: reward at index %d = %f", iter, i, res.Rewards[i])
			}
		}
	}
}

func TestResetSeedsPerMember(t *testing.T) {
	fakes := newFakes(3)
	pool, err := NewParallel(makersFor(fakes))
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = pool.Close() }()

	obs, err := pool.Reset(100)
	if err != nil {
		t.Fatalf("Reset: %v", err)
	}
	for i := range fakes {
		if obs[i][1] != float64(100+i) {
			t.Fatalf("env %d seeded with %v, want %d", i, obs[i][1], 100+i)
		}
	}
}

func TestEnvMethodBroadcastOrder(t *testing.T) {
	for _, n := range []int{1, 3} {
		fakes := newFakes(n)
		pool, err := New(makersFor(fakes))
		if err != nil {
			t.Fatal(err)
		}
		rets, err := pool.EnvMethod("update_init_rand", map[string]float64{"pitch": 0.5})
		if err != nil {
			t.Fatalf("EnvMethod: %v", err)
		}
		for i, ret := range rets {
			want := fmt.Sprintf("update_init_rand@%d", i)
			if ret.(string) != want {
				t.Fatalf("result[%d] = %v, want %s", i, ret, want)
			}
		}
		for i, f := range fakes {
			if f.lastArgs["pitch"] != 0.5 {
				t.Fatalf("env %d did not receive broadcast args: %v", i, f.lastArgs)
			}
		}
		_ = pool.Close()
	}
}

func TestAutoResetPreservesTerminalObservation(t *testing.T) {
	fakes := newFakes(2)
	fakes[1].doneIn = 1
	pool, err := NewParallel(makersFor(fakes))
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = pool.Close() }()

	res, err := pool.Step([]envs.Action{{0}, {0}})
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if !res.Dones[1] || res.Dones[0] {
		t.Fatalf("Dones = %v, want only env 1 done", res.Dones)
	}
	if _, ok := res.Infos[1]["terminal_observation"]; !ok {
		t.Fatalf("info = %v, missing terminal_observation", res.Infos[1])
	}
	if atomic.LoadInt32(&fakes[1].resets) != 1 {
		t.Fatalf("env 1 resets = %d, want 1 (auto-reset)", fakes[1].resets)
	}
}

func TestStepFailureIsFatalForBatch(t *testing.T) {
	wantErr := errors.New("worker unresponsive")
	for _, n := range []int{1, 3} {
		fakes := newFakes(n)
		fakes[n-1].stepErr = wantErr
		pool, err := New(makersFor(fakes))
		if err != nil {
			t.Fatal(err)
		}
		actions := make([]envs.Action, n)
		if _, err := pool.Step(actions); !errors.Is(err, wantErr) {
			t.Fatalf("N=%d Step error = %v, want %v", n, err, wantErr)
		}
		_ = pool.Close()
	}
}

func TestStepActionCountMismatch(t *testing.T) {
	pool, err := New(makersFor(newFakes(2)))
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = pool.Close() }()
	if _, err := pool.Step([]envs.Action{{0}}); err == nil {
		t.Fatal("mismatched action count accepted")
	}
}

func TestParallelConstructionFailureClosesBuiltMembers(t *testing.T) {
	fakes := newFakes(3)
	makers := makersFor(fakes)
	makers[1] = func() (envs.Environment, error) { return nil, errors.New("spawn failed") }
	if _, err := NewParallel(makers); err == nil {
		t.Fatal("construction succeeded despite failing maker")
	}
	for _, i := range []int{0, 2} {
		if got := atomic.LoadInt32(&fakes[i].closes); got != 1 {
			t.Fatalf("env %d closed %d times after construction failure, want 1", i, got)
		}
	}
}

func TestSequentialConstructionFailureClosesBuiltMembers(t *testing.T) {
	fakes := newFakes(2)
	makers := makersFor(fakes)
	makers = append(makers, func() (envs.Environment, error) { return nil, errors.New("spawn failed") })
	if _, err := NewSequential(makers); err == nil {
		t.Fatal("construction succeeded despite failing maker")
	}
	for i, f := range fakes {
		if got := atomic.LoadInt32(&f.closes); got != 1 {
			t.Fatalf("env %d closed %d times, want 1", i, got)
		}
	}
}
