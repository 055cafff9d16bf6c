// Package metrics exposes Prometheus counters for triage runs.
//
// All methods are safe to call on a nil *Metrics so callers that do not
// care about metrics can pass nil.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Result label values.
const (
	ResultSuccess = "success"
	ResultFailed  = "failed"
	ResultSkipped = "skipped"
)

// Metrics holds the collectors used by the pipeline.
type Metrics struct {
	MessagesFetched  prometheus.Counter
	Analysis         *prometheus.CounterVec
	AnalysisDuration prometheus.Histogram
	Dispatch         *prometheus.CounterVec
	GateDecisions    *prometheus.CounterVec
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		MessagesFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "triage_messages_fetched_total",
			Help: "Total number of unread messages fetched",
		}),
		Analysis: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "triage_analysis_total",
				Help: "Analysis results by outcome",
			},
			[]string{"outcome"}, // parsed, coerced, fallback
		),
		AnalysisDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "triage_analysis_duration_seconds",
			Help:    "Analysis engine call duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~50s
		}),
		Dispatch: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "triage_dispatch_total",
				Help: "Dispatched side effects by action and result",
			},
			[]string{"action", "result"},
		),
		GateDecisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "triage_gate_decisions_total",
				Help: "Batch approval decisions",
			},
			[]string{"decision"}, // approved, rejected, abandoned
		),
	}
	if reg != nil {
		reg.MustRegister(m.MessagesFetched, m.Analysis, m.AnalysisDuration, m.Dispatch, m.GateDecisions)
	}
	return m
}

// AddFetched counts fetched messages.
func (m *Metrics) AddFetched(n int) {
	if m == nil {
		return
	}
	m.MessagesFetched.Add(float64(n))
}

// RecordAnalysis counts one analysis outcome and its engine latency.
func (m *Metrics) RecordAnalysis(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.Analysis.WithLabelValues(outcome).Inc()
	m.AnalysisDuration.Observe(d.Seconds())
}

// RecordDispatch counts one dispatch attempt.
func (m *Metrics) RecordDispatch(action, result string) {
	if m == nil {
		return
	}
	m.Dispatch.WithLabelValues(action, result).Inc()
}

// RecordDecision counts a gate decision.
func (m *Metrics) RecordDecision(decision string) {
	if m == nil {
		return
	}
	m.GateDecisions.WithLabelValues(decision).Inc()
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
