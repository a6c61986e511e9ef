package checkpoint

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/loykin/rollout/internal/envs"
	"github.com/loykin/rollout/internal/vecenv"
)

type fakePool struct {
	n       int
	methods []string
}

func (f *fakePool) NumEnvs() int { return f.n }

func (f *fakePool) Reset(int64) ([]envs.Observation, error) { return nil, nil }

func (f *fakePool) Step([]envs.Action) (vecenv.StepResult, error) {
	return vecenv.StepResult{}, nil
}

func (f *fakePool) EnvMethod(method string, _ map[string]float64) ([]any, error) {
	f.methods = append(f.methods, method)
	out := make([]any, f.n)
	for i := range out {
		out[i] = map[string]any{"env_id": "GroundVelocityEnv-v1", "constructed": true}
	}
	return out, nil
}

func (f *fakePool) Close() error { return nil }

func TestSnapshotWritesExactlyOnce(t *testing.T) {
	dir := t.TempDir()
	pool := &fakePool{n: 2}
	static := map[string]any{"policy": "test", "seed": int64(42)}
	s := NewSnapshotLogger(pool, static, dir, "run-1", nil, testLogger())

	for step := 1; step <= 50; step++ {
		if err := s.OnStep(step); err != nil {
			t.Fatalf("OnStep(%d): %v", step, err)
		}
	}
	if got := len(pool.methods); got != 1 {
		t.Fatalf("pool queried %d times, want 1", got)
	}
	if !s.Fired() {
		t.Fatal("Fired = false after steps")
	}
	path := filepath.Join(dir, "config.yaml")
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	content := string(b)
	for _, want := range []string{"policy", "env_id", "GroundVelocityEnv-v1"} {
		if !strings.Contains(content, want) {
			t.Fatalf("snapshot missing %q:\n%s", want, content)
		}
	}
	stat, _ := os.Stat(path)
	size := stat.Size()

	// Another 50 steps must not rewrite the file.
	for step := 51; step <= 100; step++ {
		if err := s.OnStep(step); err != nil {
			t.Fatalf("OnStep(%d): %v", step, err)
		}
	}
	stat, _ = os.Stat(path)
	if stat.Size() != size {
		t.Fatal("snapshot file changed after first write")
	}
	if got := len(pool.methods); got != 1 {
		t.Fatalf("pool queried %d times after repeat steps, want 1", got)
	}
}
