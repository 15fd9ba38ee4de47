// Package metrics exposes job-execution counters and histograms in
// Prometheus format.
//
// It replaces the teacher's hand-rolled text-format Collector
// (connection/run/worker gauges assembled and formatted by hand) with
// github.com/prometheus/client_golang, registering one counter vector and
// one histogram vector keyed by job step and terminal status instead of
// load-test run/worker/connection state.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector records orchestrator job outcomes.
type Collector struct {
	jobsTotal   *prometheus.CounterVec
	jobDuration *prometheus.HistogramVec
}

// NewCollector registers the orchestrator metrics against reg. Pass
// prometheus.DefaultRegisterer to use the global registry.
func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)
	return &Collector{
		jobsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "corepipe",
			Subsystem: "jobs",
			Name:      "total",
			Help:      "Processing jobs by step and terminal status.",
		}, []string{"step", "status"}),
		jobDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "corepipe",
			Subsystem: "jobs",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of a job execution, from claim to terminal state.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12), // 1s .. ~68min
		}, []string{"step", "status"}),
	}
}

// Observe records one terminal job outcome.
func (c *Collector) Observe(step, status string, durationSeconds float64) {
	c.jobsTotal.WithLabelValues(step, status).Inc()
	c.jobDuration.WithLabelValues(step, status).Observe(durationSeconds)
}

// Handler returns the /metrics HTTP handler for the default Prometheus
// registry. A Collector built against a custom registry is not served by
// it; promhttp.HandlerFor serves such a registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
