package pipeline

import (
	"time"

	"github.com/chazu/tensile/pkg/surrogate"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the pipeline's Prometheus collectors.
type Metrics struct {
	Runs       *prometheus.CounterVec
	Inference  *prometheus.HistogramVec
	ModelState *prometheus.GaugeVec
	Feedback   *prometheus.CounterVec
}

var modelStates = []surrogate.State{
	surrogate.StateNotLoaded,
	surrogate.StateLoading,
	surrogate.StateReady,
	surrogate.StateFailed,
}

// NewMetrics creates the collectors and registers them with reg. A nil
// reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tensile",
			Name:      "runs_total",
			Help:      "Pipeline runs by strategy and outcome.",
		}, []string{"strategy", "outcome"}),
		Inference: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "tensile",
			Name:      "inference_seconds",
			Help:      "Stress inference latency.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 10),
		}, []string{"strategy"}),
		ModelState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "tensile",
			Name:      "model_state",
			Help:      "1 for the surrogate model's current state, 0 otherwise.",
		}, []string{"state"}),
		Feedback: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tensile",
			Name:      "feedback_total",
			Help:      "User feedback on predictions.",
		}, []string{"feedback"}),
	}
	m.SetModelState(surrogate.StateNotLoaded)
	if reg != nil {
		reg.MustRegister(m.Runs, m.Inference, m.ModelState, m.Feedback)
	}
	return m
}

// SetModelState marks s as the only active state.
func (m *Metrics) SetModelState(s surrogate.State) {
	for _, known := range modelStates {
		v := 0.0
		if known == s {
			v = 1
		}
		m.ModelState.WithLabelValues(known.String()).Set(v)
	}
}

// ModelStateHook adapts SetModelState to surrogate.WithStateHook.
func (m *Metrics) ModelStateHook(_, to surrogate.State) {
	m.SetModelState(to)
}

func (m *Metrics) observeRun(strategy, outcome string) {
	m.Runs.WithLabelValues(strategy, outcome).Inc()
}

func (m *Metrics) observeInference(strategy string, d time.Duration) {
	m.Inference.WithLabelValues(strategy).Observe(d.Seconds())
}
