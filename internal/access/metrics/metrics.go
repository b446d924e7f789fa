package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the access module. Tracks request
// outcomes per access kind and the latency of the two expensive steps:
// identity resolution and policy evaluation.
type Metrics struct {
	RequestsTotal    *prometheus.CounterVec
	ResolveDuration  prometheus.Histogram
	EvaluateDuration prometheus.Histogram
	AccessesRecorded prometheus.Counter
}

// New creates a Metrics instance with all access module metrics registered.
func New() *Metrics {
	return &Metrics{
		RequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "overseer_access_requests_total",
			Help: "Access requests by access kind and decision",
		}, []string{"kind", "decision"}),
		ResolveDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "overseer_identity_resolve_duration_seconds",
			Help:    "Duration of identity resolution against the SSO provider",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
		EvaluateDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "overseer_policy_evaluate_duration_seconds",
			Help:    "Duration of policy matching including the candidate load",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5},
		}),
		AccessesRecorded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "overseer_accesses_recorded_total",
			Help: "Total number of accesses written to the log",
		}),
	}
}

// ObserveRequest records the outcome of one access request.
func (m *Metrics) ObserveRequest(kind string, granted bool) {
	decision := "rejected"
	if granted {
		decision = "granted"
	}
	m.RequestsTotal.WithLabelValues(kind, decision).Inc()
}

// ObserveResolve records the duration of identity resolution.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveResolve(start time.Time) {
	m.ResolveDuration.Observe(time.Since(start).Seconds())
}

// ObserveEvaluate records the duration of policy evaluation.
func (m *Metrics) ObserveEvaluate(start time.Time) {
	m.EvaluateDuration.Observe(time.Since(start).Seconds())
}

// IncrementRecorded counts a persisted access.
func (m *Metrics) IncrementRecorded() {
	m.AccessesRecorded.Inc()
}
