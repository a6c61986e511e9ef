// Package checkpoint persists the policy during training: periodically,
// and unconditionally once more when the run ends for any reason.
package checkpoint

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/loykin/rollout/internal/metrics"
	"github.com/loykin/rollout/internal/store"
)

const (
	// NominalSaveFrequency is the target checkpoint period in global
	// steps for a single-worker run.
	NominalSaveFrequency = 210_000
	// MinSaveInterval bounds how often checkpoints may be written when
	// many workers shrink the per-worker period.
	MinSaveInterval = 1_000
)

// FinalTag names the terminal artifact.
const FinalTag = "final"

// Saver persists the current policy state to a path. The learner
// implements it; the on-disk format is its own business.
type Saver interface {
	Save(path string) error
}

// SaveFrequency derives the effective checkpoint period from the nominal
// frequency and the worker count, floored at MinSaveInterval.
func SaveFrequency(nbEnvs int) int {
	f := NominalSaveFrequency / nbEnvs
	if f < MinSaveInterval {
		f = MinSaveInterval
	}
	return f
}

// Manager writes periodic checkpoints and exactly one final artifact into
// the run's output directory.
type Manager struct {
	saver    Saver
	dir      string
	runID    string
	saveFreq int
	sink     store.Store
	log      *slog.Logger

	periods   int
	finalOnce sync.Once
	finalErr  error
}

// NewManager builds a manager saving into dir every SaveFrequency(nbEnvs)
// steps. sink may be nil when run tracking is disabled.
func NewManager(saver Saver, dir, runID string, nbEnvs int, sink store.Store, log *slog.Logger) *Manager {
	return &Manager{
		saver:    saver,
		dir:      dir,
		runID:    runID,
		saveFreq: SaveFrequency(nbEnvs),
		sink:     sink,
		log:      log,
	}
}

// OnTrainingStart implements the step-observer contract.
func (m *Manager) OnTrainingStart() error { return nil }

// OnStep writes a step-tagged checkpoint whenever the global step count
// crosses into a new save period. The count advances by the worker count
// per call, so crossing is tested rather than exact multiples, which the
// counter may never land on.
func (m *Manager) OnStep(step int) error {
	if step <= 0 || step/m.saveFreq <= m.periods {
		return nil
	}
	m.periods = step / m.saveFreq
	tag := fmt.Sprintf("checkpoint_%d_steps", step)
	path := filepath.Join(m.dir, tag+".json")
	if err := m.saver.Save(path); err != nil {
		return fmt.Errorf("checkpoint at step %d: %w", step, err)
	}
	m.record(tag, step, path, "periodic")
	m.log.Info("wrote checkpoint", "step", step, "path", path)
	return nil
}

// FinalSave persists the policy exactly once more, regardless of whether
// the run completed or was interrupted. Later calls return the first
// outcome without saving again.
func (m *Manager) FinalSave() error {
	m.finalOnce.Do(func() {
		path := filepath.Join(m.dir, FinalTag+".json")
		if err := m.saver.Save(path); err != nil {
			m.finalErr = fmt.Errorf("final save: %w", err)
			return
		}
		m.record(FinalTag, 0, path, FinalTag)
		m.log.Info("wrote final policy", "path", path)
	})
	return m.finalErr
}

// SaveFreq exposes the effective period for logging and tests.
func (m *Manager) SaveFreq() int { return m.saveFreq }

func (m *Manager) record(tag string, step int, path, kind string) {
	metrics.IncCheckpoint(m.runID, kind)
	if m.sink == nil {
		return
	}
	cp := store.Checkpoint{RunID: m.runID, Tag: tag, Step: step, Path: path, CreatedAt: time.Now()}
	if err := m.sink.RecordCheckpoint(context.Background(), cp); err != nil {
		// Tracking is best-effort; the artifact on disk is the source of truth.
		m.log.Warn("record checkpoint", "tag", tag, "err", err)
	}
}
