// Package metrics exposes Prometheus instruments for tasks, aggregation and delivery.
// All recording methods are no-ops on a nil *Metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "naverworks_cron"

// Metrics holds the instruments on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	tasksStarted  *prometheus.CounterVec
	tasksFinished *prometheus.CounterVec
	tasksRunning  *prometheus.GaugeVec
	taskDuration  *prometheus.HistogramVec
	unattributed  *prometheus.CounterVec
	fetchErrors   *prometheus.CounterVec
	reportsSaved  *prometheus.CounterVec
	deliveries    *prometheus.CounterVec
}

// New creates the instruments and registers them, along with Go runtime collectors,
// on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		tasksStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "tasks_started_total",
			Help: "Background tasks started, by type.",
		}, []string{"type"}),
		tasksFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "tasks_finished_total",
			Help: "Background tasks reaching a terminal state, by type and status.",
		}, []string{"type", "status"}),
		tasksRunning: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "tasks_running",
			Help: "Background tasks currently running, by type.",
		}, []string{"type"}),
		taskDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "task_duration_seconds",
			Help:    "Wall time of finished background tasks.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}, []string{"type"}),
		unattributed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "unattributed_records_total",
			Help: "Activity records whose author matched no roster member.",
		}, []string{"repository"}),
		fetchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "vcs_fetch_errors_total",
			Help: "Failed VCS fetches, by repository and category.",
		}, []string{"repository", "category"}),
		reportsSaved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "reports_saved_total",
			Help: "Reports written to the store, by category.",
		}, []string{"category"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "deliveries_total",
			Help: "Outbound message deliveries, by provider and result.",
		}, []string{"provider", "result"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.tasksStarted, m.tasksFinished, m.tasksRunning, m.taskDuration,
		m.unattributed, m.fetchErrors, m.reportsSaved, m.deliveries,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) TaskStarted(taskType string) {
	if m == nil {
		return
	}
	m.tasksStarted.WithLabelValues(taskType).Inc()
	m.tasksRunning.WithLabelValues(taskType).Inc()
}

func (m *Metrics) TaskFinished(taskType, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.tasksFinished.WithLabelValues(taskType, status).Inc()
	m.tasksRunning.WithLabelValues(taskType).Dec()
	m.taskDuration.WithLabelValues(taskType).Observe(elapsed.Seconds())
}

func (m *Metrics) Unattributed(repository string) {
	if m == nil {
		return
	}
	m.unattributed.WithLabelValues(repository).Inc()
}

func (m *Metrics) FetchError(repository, category string) {
	if m == nil {
		return
	}
	m.fetchErrors.WithLabelValues(repository, category).Inc()
}

func (m *Metrics) ReportSaved(category string) {
	if m == nil {
		return
	}
	m.reportsSaved.WithLabelValues(category).Inc()
}

func (m *Metrics) Delivery(provider string, err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.deliveries.WithLabelValues(provider, result).Inc()
}
