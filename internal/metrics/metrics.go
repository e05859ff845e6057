// Package metrics holds the prometheus collectors of the content graph.
//
// Collectors are registered on an injected registerer, never the global
// default, so tests and embedders own their registry. A nil *Metrics is
// valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "contentgraph"

// Listen outcomes.
const (
	OutcomeCompleted = "completed"
	OutcomeInstant   = "instant"
	OutcomeTimeout   = "timeout"
	OutcomeCancelled = "cancelled"
	OutcomeError     = "error"
)

// Metrics groups every collector.
type Metrics struct {
	ListenOutcomes *prometheus.CounterVec
	ListenWaiting  prometheus.Gauge
	Writes         *prometheus.CounterVec
	Denials        *prometheus.CounterVec
	SearchSeconds  *prometheus.HistogramVec
	ChainSteps     prometheus.Counter
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ListenOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "listen",
			Name:      "outcomes_total",
			Help:      "Listen calls by outcome.",
		}, []string{"outcome"}),
		ListenWaiting: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "listen",
			Name:      "waiting",
			Help:      "Listen calls currently registered.",
		}),
		Writes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "writes_total",
			Help:      "Committed writes by operation.",
		}, []string{"op"}),
		Denials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "permission",
			Name:      "denials_total",
			Help:      "Permission denials by action.",
		}, []string{"action"}),
		SearchSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_seconds",
			Help:      "Search latency by kind.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
		}, []string{"kind"}),
		ChainSteps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      "steps_total",
			Help:      "Chain steps executed.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.ListenOutcomes, m.ListenWaiting, m.Writes, m.Denials, m.SearchSeconds, m.ChainSteps)
	}
	return m
}

// ListenFinished counts one listen outcome.
func (m *Metrics) ListenFinished(outcome string) {
	if m == nil {
		return
	}
	m.ListenOutcomes.WithLabelValues(outcome).Inc()
}

// ListenWaitingDelta moves the waiting gauge.
func (m *Metrics) ListenWaitingDelta(d int) {
	if m == nil {
		return
	}
	m.ListenWaiting.Add(float64(d))
}

// Wrote counts one committed write.
func (m *Metrics) Wrote(op string) {
	if m == nil {
		return
	}
	m.Writes.WithLabelValues(op).Inc()
}

// Denied counts one permission denial.
func (m *Metrics) Denied(action string) {
	if m == nil {
		return
	}
	m.Denials.WithLabelValues(action).Inc()
}

// ObserveSearch records the latency of a search started at start.
func (m *Metrics) ObserveSearch(kind string, start time.Time) {
	if m == nil {
		return
	}
	m.SearchSeconds.WithLabelValues(kind).Observe(time.Since(start).Seconds())
}

// ChainStep counts one executed chain step.
func (m *Metrics) ChainStep() {
	if m == nil {
		return
	}
	m.ChainSteps.Inc()
}
