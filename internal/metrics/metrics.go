// Package metrics collects and exposes Prometheus metrics for capture
// runs.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the capture-run instruments. It carries its own
// registry so repeated construction (tests, cron re-runs) never trips
// duplicate registration.
type Collector struct {
	registry *prometheus.Registry

	jobsSucceeded prometheus.Counter
	jobsFailed    prometheus.Counter
	jobsRetried   prometheus.Counter
	taskSeconds   prometheus.Histogram
	queueDepth    prometheus.Gauge
	batchesRun    prometheus.Counter
}

// NewCollector creates a collector with all instruments registered.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,
		jobsSucceeded: factory.NewCounter(prometheus.CounterOpts{
			Name: "goingest_jobs_succeeded_total",
			Help: "Capture jobs that reached a successful terminal outcome.",
		}),
		jobsFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "goingest_jobs_failed_total",
			Help: "Capture jobs that exhausted their retry budget.",
		}),
		jobsRetried: factory.NewCounter(prometheus.CounterOpts{
			Name: "goingest_jobs_retried_total",
			Help: "Individual failed attempts that were re-enqueued.",
		}),
		taskSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "goingest_task_duration_seconds",
			Help:    "Total per-job elapsed time across all attempts.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
		queueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "goingest_queue_depth",
			Help: "Jobs currently waiting in the task queue.",
		}),
		batchesRun: factory.NewCounter(prometheus.CounterOpts{
			Name: "goingest_batches_total",
			Help: "Batches pulled from the job source and run to completion.",
		}),
	}
}

// RecordOutcome registers one terminal job outcome.
func (c *Collector) RecordOutcome(ok bool, taskSeconds float64) {
	if ok {
		c.jobsSucceeded.Inc()
	} else {
		c.jobsFailed.Inc()
	}
	c.taskSeconds.Observe(taskSeconds)
}

// RecordRetry registers one re-enqueued attempt.
func (c *Collector) RecordRetry() {
	c.jobsRetried.Inc()
}

// RecordBatch registers one completed batch.
func (c *Collector) RecordBatch() {
	c.batchesRun.Inc()
}

// SetQueueDepth publishes the current queue depth.
func (c *Collector) SetQueueDepth(n int) {
	c.queueDepth.Set(float64(n))
}

// Handler returns an HTTP handler serving this collector's registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mainly for tests.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}
