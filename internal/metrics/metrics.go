package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels for dispatch calls that end without a decision.
const (
	OutcomeDuplicate = "duplicate"
	OutcomeError     = "error"
)

// Metrics provides observability for the dispatch engine.
type Metrics struct {
	// Dispatch outcomes: "matched" and "escalated" decisions, "duplicate" when
	// the guard rejects a repeat, "error" when a collaborator fails
	DispatchOutcome *prometheus.CounterVec

	// Full dispatch latency including notification fanout
	DispatchLatency prometheus.Histogram

	// Candidates found within the search radius per dispatch
	Candidates prometheus.Histogram

	// Delivery attempts by channel and result
	Deliveries *prometheus.CounterVec
}

// New registers the dispatch metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		DispatchOutcome: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dispatch_outcomes_total",
			Help: "Total dispatch invocations by outcome",
		}, []string{"outcome"}),

		DispatchLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "dispatch_duration_seconds",
			Help:    "Duration of a dispatch invocation including notification fanout",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),

		Candidates: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "dispatch_candidates",
			Help:    "Number of responders found within the search radius",
			Buckets: []float64{0, 1, 2, 3, 5, 10, 25, 50},
		}),

		Deliveries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "notification_deliveries_total",
			Help: "Notification delivery attempts by channel and result",
		}, []string{"channel", "result"}),
	}
}

// IncrementOutcome records a dispatch outcome.
func (m *Metrics) IncrementOutcome(outcome string) {
	if m != nil {
		m.DispatchOutcome.WithLabelValues(outcome).Inc()
	}
}

// ObserveDispatchLatency records the total dispatch duration.
func (m *Metrics) ObserveDispatchLatency(d time.Duration) {
	if m != nil {
		m.DispatchLatency.Observe(d.Seconds())
	}
}

// ObserveCandidates records how many candidates a dispatch found.
func (m *Metrics) ObserveCandidates(n int) {
	if m != nil {
		m.Candidates.Observe(float64(n))
	}
}

// IncrementDelivery records one delivery attempt.
func (m *Metrics) IncrementDelivery(channel string, ok bool) {
	if m == nil {
		return
	}
	result := "success"
	if !ok {
		result = "failure"
	}
	m.Deliveries.WithLabelValues(channel, result).Inc()
}
