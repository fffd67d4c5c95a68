// Package metrics provides Prometheus metrics for invoicecheck.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for validation runs.
type Metrics struct {
	RunsTotal         *prometheus.CounterVec
	RunDuration       *prometheus.HistogramVec
	RunsInFlight      prometheus.Gauge
	FindingsTotal     *prometheus.CounterVec
	DocumentBytes     prometheus.Histogram
	RuleSetLoadsTotal *prometheus.CounterVec

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg. A nil reg means
// prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		RunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "invoicecheck_runs_total",
				Help: "Total number of validation runs by verdict and final state",
			},
			[]string{"verdict", "state"},
		),
		RunDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "invoicecheck_run_duration_seconds",
				Help:    "Duration of validation runs in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"verdict"},
		),
		RunsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "invoicecheck_runs_in_flight",
				Help: "Number of validation runs currently being processed",
			},
		),
		FindingsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "invoicecheck_findings_total",
				Help: "Total number of findings by stage and severity",
			},
			[]string{"stage", "severity"},
		),
		DocumentBytes: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "invoicecheck_document_bytes",
				Help:    "Size of validated documents in bytes",
				Buckets: prometheus.ExponentialBuckets(1024, 4, 8),
			},
		),
		RuleSetLoadsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "invoicecheck_ruleset_loads_total",
				Help: "Total number of rule-set resolutions by status",
			},
			[]string{"status"},
		),
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "invoicecheck_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "invoicecheck_http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}
}

// RecordRun records a finished validation run.
func (m *Metrics) RecordRun(verdict, state string, duration time.Duration, size int) {
	m.RunsTotal.WithLabelValues(verdict, state).Inc()
	m.RunDuration.WithLabelValues(verdict).Observe(duration.Seconds())
	if size > 0 {
		m.DocumentBytes.Observe(float64(size))
	}
}

// RecordFinding counts one finding.
func (m *Metrics) RecordFinding(stage, severity string) {
	m.FindingsTotal.WithLabelValues(stage, severity).Inc()
}

// RecordRuleSetLoad counts one rule-set resolution.
func (m *Metrics) RecordRuleSetLoad(status string) {
	m.RuleSetLoadsTotal.WithLabelValues(status).Inc()
}

// RecordHTTPRequest records a served HTTP request.
func (m *Metrics) RecordHTTPRequest(method, route, status string, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, route, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
