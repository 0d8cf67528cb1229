// Package metrics exposes Prometheus collectors for the fraud pipeline.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

// Metrics holds the pipeline collectors.
type Metrics struct {
	registry *prometheus.Registry

	decisions       *prometheus.CounterVec
	riskScore       prometheus.Histogram
	processing      prometheus.Histogram
	alerts          *prometheus.CounterVec
	failures        *prometheus.CounterVec
	ruleEvaluations *prometheus.CounterVec
	ruleDuration    *prometheus.HistogramVec
}

// New creates the collectors and registers them, with the Go and process
// collectors, on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kestrel_decisions_total",
			Help: "Decisions rendered, by decision type.",
		}, []string{"decision"}),
		riskScore: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "kestrel_risk_score",
			Help:    "Distribution of total risk scores.",
			Buckets: prometheus.LinearBuckets(10, 10, 10),
		}),
		processing: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "kestrel_processing_seconds",
			Help:    "End-to-end transaction processing time.",
			Buckets: prometheus.DefBuckets,
		}),
		alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kestrel_alerts_created_total",
			Help: "Fraud alerts created, by severity.",
		}, []string{"severity"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kestrel_processing_failures_total",
			Help: "Transactions that failed processing, by stage.",
		}, []string{"stage"}),
		ruleEvaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kestrel_rule_evaluations_total",
			Help: "Rule evaluations, by rule and outcome.",
		}, []string{"rule", "outcome"}),
		ruleDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "kestrel_rule_duration_seconds",
			Help:    "Rule execution time.",
			Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5},
		}, []string{"rule"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.decisions,
		m.riskScore,
		m.processing,
		m.alerts,
		m.failures,
		m.ruleEvaluations,
		m.ruleDuration,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordDecision counts a decision and observes its score and latency.
func (m *Metrics) RecordDecision(d domain.DecisionType, score decimal.Decimal, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(string(d)).Inc()
	m.riskScore.Observe(score.InexactFloat64())
	m.processing.Observe(elapsed.Seconds())
}

// RecordAlert counts a created alert.
func (m *Metrics) RecordAlert(severity domain.Severity) {
	if m == nil {
		return
	}
	m.alerts.WithLabelValues(string(severity)).Inc()
}

// RecordFailure counts a processing failure.
func (m *Metrics) RecordFailure(stage string) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(stage).Inc()
}

// RecordRule counts a rule result and observes its duration.
func (m *Metrics) RecordRule(r domain.RuleResult) {
	if m == nil {
		return
	}
	m.ruleEvaluations.WithLabelValues(r.RuleName, outcome(r)).Inc()
	m.ruleDuration.WithLabelValues(r.RuleName).Observe(r.Duration.Seconds())
}

func outcome(r domain.RuleResult) string {
	switch {
	case r.Failed():
		return "error"
	case r.Triggered:
		return "triggered"
	default:
		return "passed"
	}
}
