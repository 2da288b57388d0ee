// Package metrics records run outcomes via
// github.com/prometheus/client_golang counter and histogram vectors. It
// exposes only the registry and recorder — the HTTP exporter is an
// external reporter and lives outside this module.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector records run completions. The Worker Loop calls it once per
// driven run.
type Collector interface {
	RecordRunCompletion(pipeline string, outcome string, d time.Duration)
}

// PrometheusCollector is the production Collector, backed by a
// CounterVec/HistogramVec pair registered against a prometheus.Registerer.
type PrometheusCollector struct {
	completions *prometheus.CounterVec
	duration    *prometheus.HistogramVec
}

// NewPrometheusCollector constructs and registers the collector's metrics
// against reg. Passing prometheus.NewRegistry() keeps test runs isolated
// from the global default registry.
func NewPrometheusCollector(reg prometheus.Registerer) *PrometheusCollector {
	completions := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_run_completions_total",
			Help: "Total number of pipeline runs completed, by pipeline and outcome.",
		},
		[]string{"pipeline", "outcome"},
	)
	duration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pipeline_run_duration_seconds",
			Help:    "Duration of driven pipeline runs in seconds, by pipeline and outcome.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"pipeline", "outcome"},
	)
	reg.MustRegister(completions, duration)
	return &PrometheusCollector{completions: completions, duration: duration}
}

// RecordRunCompletion records one run's terminal outcome and duration.
func (c *PrometheusCollector) RecordRunCompletion(pipelineName string, outcome string, d time.Duration) {
	c.completions.WithLabelValues(pipelineName, outcome).Inc()
	c.duration.WithLabelValues(pipelineName, outcome).Observe(d.Seconds())
}

// NoopCollector discards every recording, used where no metrics backend is
// configured (worker.New falls back to it when given a nil Collector).
type NoopCollector struct{}

// RecordRunCompletion is a no-op.
func (NoopCollector) RecordRunCompletion(string, string, time.Duration) {}
