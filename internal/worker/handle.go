package worker

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/loykin/rollout/internal/metrics"
)

// DefaultTeardownWait bounds how long Teardown waits after SIGINT before
// escalating to SIGKILL.
const DefaultTeardownWait = 5 * time.Second

// Spec describes how to launch one spine simulator process.
type Spec struct {
	SpinePath      string
	NbSubsteps     int
	SpineFrequency int
	Show           bool
}

// Args builds the spine command line for the given channel name.
func (s Spec) Args(shmName string) []string {
	argv := []string{
		"--shm-name", shmName,
		"--nb-substeps", strconv.Itoa(s.NbSubsteps),
		"--spine-frequency", strconv.Itoa(s.SpineFrequency),
	}
	if s.Show {
		argv = append(argv, "--show")
	}
	return argv
}

// Handle owns one spine subprocess and the shared-memory channel name used
// to talk to it. Exactly one simulator process per handle.
type Handle struct {
	spec     Spec
	registry *Registry
	log      *slog.Logger

	shmName  string
	cmd      *exec.Cmd
	waitOnce sync.Once
	downOnce sync.Once
	waitErr  error
}

// New reserves a channel name and returns an unspawned handle. The name is
// held until Teardown even if Spawn never runs, so partial construction
// still releases it through the same path.
func New(spec Spec, registry *Registry, log *slog.Logger) *Handle {
	return &Handle{
		spec:     spec,
		registry: registry,
		log:      log,
		shmName:  registry.Acquire(),
	}
}

// ShmName returns the reserved shared-memory channel name.
func (h *Handle) ShmName() string { return h.shmName }

// PID returns the spine process id, or 0 before Spawn.
func (h *Handle) PID() int {
	if h.cmd == nil || h.cmd.Process == nil {
		return 0
	}
	return h.cmd.Process.Pid
}

// Spawn starts the spine process bound to the handle's channel name. The
// child runs in its own process group so teardown signals never reach the
// trainer.
func (h *Handle) Spawn() error {
	if h.cmd != nil {
		return fmt.Errorf("worker %s already spawned", h.shmName)
	}
	// #nosec G204 -- spine path comes from validated run configuration
	cmd := exec.Command(h.spec.SpinePath, h.spec.Args(h.shmName)...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	null, _ := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	cmd.Stdout = null
	cmd.Stderr = null
	err := cmd.Start()
	if null != nil {
		// The child holds its own descriptor copies once started.
		_ = null.Close()
	}
	if err != nil {
		return fmt.Errorf("spawn spine %s: %w", h.shmName, err)
	}
	h.cmd = cmd
	metrics.WorkerUp()
	h.log.Info("spawned spine", "shm", h.shmName, "pid", cmd.Process.Pid)
	return nil
}

// Teardown interrupts the spine, blocks until it has exited, then releases
// the channel name, in that order. It is idempotent and tolerates handles
// that never spawned or processes that already exited.
func (h *Handle) Teardown(wait time.Duration) error {
	var err error
	h.waitOnce.Do(func() {
		defer h.registry.Release(h.shmName)
		if h.cmd == nil || h.cmd.Process == nil {
			return
		}
		h.downOnce.Do(metrics.WorkerDown)
		pid := h.cmd.Process.Pid
		h.log.Info("terminating spine", "shm", h.shmName, "pid", pid)
		// The process may already be gone; signal errors are not failures.
		_ = syscall.Kill(pid, syscall.SIGINT)

		done := make(chan error, 1)
		go func() { done <- h.cmd.Wait() }()
		select {
		case werr := <-done:
			h.waitErr = werr
		case <-time.After(wait):
			_ = syscall.Kill(-pid, syscall.SIGKILL)
			h.waitErr = <-done
		}
	})
	if h.waitErr != nil {
		// Exit-by-signal is the expected outcome of an interrupt.
		var exitErr *exec.ExitError
		if !errors.As(h.waitErr, &exitErr) {
			err = h.waitErr
		}
	}
	return err
}
