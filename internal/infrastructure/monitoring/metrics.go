package monitoring

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for one host run.
type Metrics struct {
	registry *prometheus.Registry

	// Script driver metrics
	ScriptsTotal   *prometheus.CounterVec
	ScriptDuration prometheus.Histogram

	// Sandbox metrics
	EvalcxTotal         *prometheus.CounterVec
	SandboxCompilations prometheus.Counter
	ContextsLive        prometheus.Gauge

	// Binding lifecycle metrics
	BindingsLive      prometheus.Gauge
	BindingsFinalized prometheus.Counter
	Collections       *prometheus.CounterVec

	// Transport metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
}

// NewMetrics creates a metrics collector on a private registry so that
// several engines (e.g. in tests) never collide on registration.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		ScriptsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "couchjs_scripts_total",
				Help: "Total number of script files executed",
			},
			[]string{"status"},
		),
		ScriptDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "couchjs_script_duration_seconds",
				Help:    "Script compile and execution time in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
		),

		EvalcxTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "couchjs_evalcx_total",
				Help: "Total number of evalcx calls by outcome",
			},
			[]string{"outcome"},
		),
		SandboxCompilations: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "couchjs_sandbox_compilations_total",
				Help: "Number of sources compiled inside sandbox sub-contexts",
			},
		),
		ContextsLive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "couchjs_contexts_live",
				Help: "Number of execution contexts currently alive",
			},
		),

		BindingsLive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "couchjs_bindings_live",
				Help: "Number of tracked native objects awaiting finalization",
			},
		),
		BindingsFinalized: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "couchjs_bindings_finalized_total",
				Help: "Number of native objects finalized",
			},
		),
		Collections: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "couchjs_collections_total",
				Help: "Collection passes by kind",
			},
			[]string{"kind"},
		),

		HTTPRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "couchjs_http_requests_total",
				Help: "Total number of CouchHTTP requests sent",
			},
			[]string{"method", "status"},
		),
		HTTPDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "couchjs_http_request_duration_seconds",
				Help:    "CouchHTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"method"},
		),
	}
}

// Registry returns the registry backing these metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordScript records one script run.
func (m *Metrics) RecordScript(status string, duration time.Duration) {
	m.ScriptsTotal.WithLabelValues(status).Inc()
	m.ScriptDuration.Observe(duration.Seconds())
}

// RecordEvalcx records an evalcx outcome: ok, denied, invalid or error.
func (m *Metrics) RecordEvalcx(outcome string) {
	m.EvalcxTotal.WithLabelValues(outcome).Inc()
}

// RecordHTTPRequest records a transport round trip. A zero status means
// the request failed before a response arrived.
func (m *Metrics) RecordHTTPRequest(method string, status int, duration time.Duration) {
	label := "error"
	if status > 0 {
		label = fmt.Sprintf("%d", status)
	}
	m.HTTPRequests.WithLabelValues(method, label).Inc()
	m.HTTPDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordCollection records a collection pass and how many objects it finalized.
func (m *Metrics) RecordCollection(kind string, finalized int) {
	m.Collections.WithLabelValues(kind).Inc()
	m.BindingsFinalized.Add(float64(finalized))
}

// WriteTextfile writes all metrics in the text exposition format, suitable
// for the node_exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}
