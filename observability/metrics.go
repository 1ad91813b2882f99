// Package observability records queue lifecycle metrics in Prometheus.
// MetricsExtension implements the hook interfaces, so the worker hot path
// stays free of metrics code; Handler exposes the registry for /metrics.
package observability

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/siga-labs/txq/hook"
	"github.com/siga-labs/txq/job"
)

// Compile-time interface checks.
var (
	_ hook.Extension       = (*MetricsExtension)(nil)
	_ hook.JobEnqueued     = (*MetricsExtension)(nil)
	_ hook.JobStarted      = (*MetricsExtension)(nil)
	_ hook.JobCompleted    = (*MetricsExtension)(nil)
	_ hook.JobSkipped      = (*MetricsExtension)(nil)
	_ hook.JobRetrying     = (*MetricsExtension)(nil)
	_ hook.JobDeadLettered = (*MetricsExtension)(nil)
)

// MetricsExtension counts lifecycle events per queue and entity kind and
// tracks execution latency. Register it on the hook registry.
type MetricsExtension struct {
	registry *prometheus.Registry

	enqueued     *prometheus.CounterVec
	started      *prometheus.CounterVec
	completed    *prometheus.CounterVec
	skipped      *prometheus.CounterVec
	retried      *prometheus.CounterVec
	deadLettered *prometheus.CounterVec
	duration     *prometheus.HistogramVec
}

// NewMetricsExtension creates the extension on its own registry.
func NewMetricsExtension() *MetricsExtension {
	return NewMetricsExtensionWithRegistry(prometheus.NewRegistry())
}

// NewMetricsExtensionWithRegistry creates the extension on reg, for
// callers that already expose a shared registry.
func NewMetricsExtensionWithRegistry(reg *prometheus.Registry) *MetricsExtension {
	factory := promauto.With(reg)
	return &MetricsExtension{
		registry: reg,
		enqueued: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "txq_jobs_enqueued_total",
			Help: "Jobs admitted into a backlog lane.",
		}, []string{"queue", "entity"}),
		started: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "txq_jobs_started_total",
			Help: "Job executions started by a worker.",
		}, []string{"queue", "entity"}),
		completed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "txq_jobs_completed_total",
			Help: "Jobs that finished successfully.",
		}, []string{"queue", "entity"}),
		skipped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "txq_jobs_skipped_total",
			Help: "Jobs that ended in a terminal skip.",
		}, []string{"queue", "entity"}),
		retried: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "txq_jobs_retried_total",
			Help: "Job attempts that failed and were requeued.",
		}, []string{"queue", "entity"}),
		deadLettered: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "txq_jobs_dead_lettered_total",
			Help: "Jobs moved to a dead-letter list.",
		}, []string{"queue", "entity"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "txq_job_duration_seconds",
			Help:    "Execution time of completed jobs.",
			Buckets: prometheus.DefBuckets,
		}, []string{"queue", "entity"}),
	}
}

// Name implements hook.Extension.
func (m *MetricsExtension) Name() string { return "prometheus-metrics" }

// Handler returns the HTTP handler serving the extension's registry.
func (m *MetricsExtension) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying Prometheus registry.
func (m *MetricsExtension) Registry() *prometheus.Registry { return m.registry }

func (m *MetricsExtension) OnJobEnqueued(_ context.Context, queue string, j *job.Job) error {
	m.enqueued.WithLabelValues(queue, j.Entity).Inc()
	return nil
}

func (m *MetricsExtension) OnJobStarted(_ context.Context, queue string, j *job.Job) error {
	m.started.WithLabelValues(queue, j.Entity).Inc()
	return nil
}

func (m *MetricsExtension) OnJobCompleted(_ context.Context, queue string, j *job.Job, elapsed time.Duration) error {
	m.completed.WithLabelValues(queue, j.Entity).Inc()
	m.duration.WithLabelValues(queue, j.Entity).Observe(elapsed.Seconds())
	return nil
}

func (m *MetricsExtension) OnJobSkipped(_ context.Context, queue string, j *job.Job, _ string) error {
	m.skipped.WithLabelValues(queue, j.Entity).Inc()
	return nil
}

func (m *MetricsExtension) OnJobRetrying(_ context.Context, queue string, j *job.Job, _ int, _ time.Duration) error {
	m.retried.WithLabelValues(queue, j.Entity).Inc()
	return nil
}

func (m *MetricsExtension) OnJobDeadLettered(_ context.Context, queue string, j *job.Job, _ string) error {
	m.deadLettered.WithLabelValues(queue, j.Entity).Inc()
	return nil
}
