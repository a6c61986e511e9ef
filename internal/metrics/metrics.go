package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	timesteps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rollout",
			Subsystem: "train",
			Name:      "timesteps_total",
			Help:      "Number of global environment timesteps taken.",
		}, []string{"run"},
	)
	episodes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rollout",
			Subsystem: "train",
			Name:      "episodes_total",
			Help:      "Number of completed episodes across all workers.",
		}, []string{"run"},
	)
	checkpoints = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rollout",
			Subsystem: "train",
			Name:      "checkpoints_total",
			Help:      "Number of checkpoint artifacts written.",
		}, []string{"run", "kind"},
	)
	episodeReturn = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "rollout",
			Subsystem: "train",
			Name:      "episode_return",
			Help:      "Return of the most recently completed episode.",
		}, []string{"run"},
	)
	curriculumValue = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "rollout",
			Subsystem: "curriculum",
			Name:      "init_rand",
			Help:      "Current init-randomization bound per curriculum parameter.",
		}, []string{"run", "key"},
	)
	liveWorkers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "rollout",
			Subsystem: "worker",
			Name:      "live",
			Help:      "Number of spine worker processes currently alive.",
		},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{timesteps, episodes, checkpoints, episodeReturn, curriculumValue, liveWorkers}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			// If already registered, ignore (allows double Register with default registry)
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler serving Prometheus metrics for the DefaultGatherer.
// The caller is responsible for starting an HTTP server and wiring the route.
func Handler() http.Handler { return promhttp.Handler() }

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func AddTimesteps(run string, n int) {
	if regOK.Load() {
		timesteps.WithLabelValues(run).Add(float64(n))
	}
}

func IncEpisode(run string, ret float64) {
	if regOK.Load() {
		episodes.WithLabelValues(run).Inc()
		episodeReturn.WithLabelValues(run).Set(ret)
	}
}

func IncCheckpoint(run, kind string) {
	if regOK.Load() {
		checkpoints.WithLabelValues(run, kind).Inc()
	}
}

func SetCurriculum(run, key string, v float64) {
	if regOK.Load() {
		curriculumValue.WithLabelValues(run, key).Set(v)
	}
}

func WorkerUp() {
	if regOK.Load() {
		liveWorkers.Inc()
	}
}

func WorkerDown() {
	if regOK.Load() {
		liveWorkers.Dec()
	}
}
