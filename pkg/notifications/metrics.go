package notifications

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Submit outcomes.
const (
	OutcomeCreated   = "created"
	OutcomeDuplicate = "duplicate"
	OutcomeInvalid   = "invalid"
	OutcomeFailed    = "failed"
)

// Guard decisions.
const (
	DecisionAccepted   = "accepted"
	DecisionCacheHit   = "cache_hit"
	DecisionStoreMatch = "store_match"
	DecisionStoreError = "store_error"
)

// Metrics exposes pipeline counters to Prometheus.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	submits    *prometheus.CounterVec
	decisions  *prometheus.CounterVec
	reconnects *prometheus.CounterVec
	routed     *prometheus.CounterVec
	sinkErrors *prometheus.CounterVec
}

// NewMetrics registers the pipeline collectors with reg.
// It panics if the collectors are already registered with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		submits: f.NewCounterVec(prometheus.CounterOpts{
			Name: "notifykit_submits_total",
			Help: "Notification intents submitted, by outcome.",
		}, []string{"outcome"}),
		decisions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "notifykit_dedup_decisions_total",
			Help: "Duplicate guard decisions, by decision.",
		}, []string{"decision"}),
		reconnects: f.NewCounterVec(prometheus.CounterOpts{
			Name: "notifykit_feed_reconnects_total",
			Help: "Feed reconnect attempts, by recipient type.",
		}, []string{"recipient_type"}),
		routed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "notifykit_routed_total",
			Help: "Notifications delivered to sinks, by sink.",
		}, []string{"sink"}),
		sinkErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "notifykit_sink_errors_total",
			Help: "Sink delivery failures, by sink.",
		}, []string{"sink"}),
	}
}

func (m *Metrics) submit(outcome string) {
	if m != nil {
		m.submits.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) decision(decision string) {
	if m != nil {
		m.decisions.WithLabelValues(decision).Inc()
	}
}

func (m *Metrics) reconnect(t RecipientType) {
	if m != nil {
		m.reconnects.WithLabelValues(string(t)).Inc()
	}
}

func (m *Metrics) delivered(sink string, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.sinkErrors.WithLabelValues(sink).Inc()
		return
	}
	m.routed.WithLabelValues(sink).Inc()
}
