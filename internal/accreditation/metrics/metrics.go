package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus collectors for accreditation operations.
type Metrics struct {
	SessionsStarted   prometheus.Counter
	SessionsCompleted *prometheus.CounterVec
	SessionsFailed    *prometheus.CounterVec
	StepsApplied      *prometheus.CounterVec
	StepsRejected     *prometheus.CounterVec
	StepLatency       *prometheus.HistogramVec
	CASConflicts      prometheus.Counter
	VINLookups        *prometheus.CounterVec
}

// New registers and returns accreditation metrics collectors.
func New() *Metrics {
	return &Metrics{
		SessionsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "accredo_sessions_started_total",
			Help: "Total number of accreditation sessions started",
		}),
		SessionsCompleted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "accredo_sessions_completed_total",
			Help: "Total number of sessions completed, labeled by path",
		}, []string{"path"}),
		SessionsFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "accredo_sessions_failed_total",
			Help: "Total number of sessions failed, labeled by reason",
		}, []string{"reason"}),
		StepsApplied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "accredo_steps_applied_total",
			Help: "Total number of step events applied, labeled by path and step",
		}, []string{"path", "step"}),
		StepsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "accredo_steps_rejected_total",
			Help: "Total number of step events rejected, labeled by error code",
		}, []string{"code"}),
		StepLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "accredo_step_latency_seconds",
			Help:    "Latency of step application in seconds, labeled by step",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
		}, []string{"step"}),
		CASConflicts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "accredo_cas_conflicts_total",
			Help: "Total number of optimistic concurrency conflicts during step application",
		}),
		VINLookups: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "accredo_vin_lookups_total",
			Help: "Total number of voter register lookups, labeled by outcome",
		}, []string{"outcome"}),
	}
}

func (m *Metrics) IncrementSessionsStarted() {
	m.SessionsStarted.Inc()
}

func (m *Metrics) IncrementSessionsCompleted(path string) {
	m.SessionsCompleted.WithLabelValues(path).Inc()
}

func (m *Metrics) IncrementSessionsFailed(reason string) {
	m.SessionsFailed.WithLabelValues(reason).Inc()
}

func (m *Metrics) IncrementStepsApplied(path, step string) {
	m.StepsApplied.WithLabelValues(path, step).Inc()
}

func (m *Metrics) IncrementStepsRejected(code string) {
	m.StepsRejected.WithLabelValues(code).Inc()
}

// ObserveStepLatency records how long one step application took.
func (m *Metrics) ObserveStepLatency(step string, durationSeconds float64) {
	m.StepLatency.WithLabelValues(step).Observe(durationSeconds)
}

func (m *Metrics) IncrementCASConflicts() {
	m.CASConflicts.Inc()
}

func (m *Metrics) IncrementVINLookups(outcome string) {
	m.VINLookups.WithLabelValues(outcome).Inc()
}
