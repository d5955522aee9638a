// Package metrics provides Prometheus metrics for the pitchboard results service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	// Pipeline metrics
	pipelineRuns       *prometheus.CounterVec
	pipelineDuration   prometheus.Histogram
	fetchDuration      *prometheus.HistogramVec
	recordsSkipped     *prometheus.CounterVec
	leaderboardEntries *prometheus.GaugeVec
	triggerDecisions   *prometheus.CounterVec
	failureFlagErrors  prometheus.Counter
	notificationErrors prometheus.Counter

	// Change delivery metrics
	queueSize      prometheus.Gauge
	queueCapacity  prometheus.Gauge
	queueEnqueued  prometheus.Counter
	queueDequeued  prometheus.Counter
	queueErrors    *prometheus.CounterVec
	workerActive   prometheus.Gauge
	workerRetries  prometheus.Counter
	workerFailures prometheus.Counter

	// HTTP metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	errorsByComponent *prometheus.CounterVec
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "pitchboard",
		subsystem:        "results",
		histogramBuckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		constLabels:      prometheus.Labels{},
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
		Buckets: m.histogramBuckets,
	}, labels)
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() {
	m.pipelineRuns = m.counterVec("pipeline_runs_total",
		"Aggregation pipeline runs by outcome (ready, failed)", "outcome")
	m.pipelineDuration = promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.constLabels,
		Name:    "pipeline_duration_milliseconds",
		Help:    "End-to-end aggregation pipeline duration in milliseconds",
		Buckets: m.histogramBuckets,
	})
	m.fetchDuration = m.histogramVec("fetch_duration_milliseconds",
		"Collection fetch duration in milliseconds", "collection")
	m.recordsSkipped = m.counterVec("records_skipped_total",
		"Malformed investment/rating records skipped during aggregation", "kind", "reason")
	m.leaderboardEntries = promauto.With(m.registry).NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.constLabels,
		Name: "leaderboard_entries",
		Help: "Entries in the most recently written leaderboard by metric",
	}, []string{"metric"})
	m.triggerDecisions = m.counterVec("trigger_decisions_total",
		"Event change notifications by trigger decision", "decision")
	m.failureFlagErrors = m.counter("failure_flag_errors_total",
		"Failures to record resultsError on the event after a failed run")
	m.notificationErrors = m.counter("notification_errors_total",
		"Failures to write host notifications")

	m.queueSize = m.gauge("change_queue_size", "Current number of queued change notifications")
	m.queueCapacity = m.gauge("change_queue_capacity", "Maximum change queue capacity")
	m.queueEnqueued = m.counter("change_queue_enqueue_total", "Change notifications enqueued")
	m.queueDequeued = m.counter("change_queue_dequeue_total", "Change notifications dequeued")
	m.queueErrors = m.counterVec("change_queue_errors_total",
		"Change notifications rejected by the queue", "reason")
	m.workerActive = m.gauge("worker_active_count", "Number of running delivery workers")
	m.workerRetries = m.counter("worker_retries_total", "Change redeliveries after a handler failure")
	m.workerFailures = m.counter("worker_failures_total", "Changes dropped after exhausting delivery attempts")

	m.httpRequests = m.counterVec("http_requests_total",
		"Total number of HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds",
		"HTTP request duration in milliseconds", "endpoint", "method", "status_code")

	m.errorsByComponent = m.counterVec("errors_by_component_total",
		"Total number of errors by component", "component", "error_type")
}

// RecordPipelineRun counts a finished pipeline run; outcome is "ready" or "failed".
func RecordPipelineRun(outcome string, durationMs float64) {
	globalManager.pipelineRuns.WithLabelValues(outcome).Inc()
	globalManager.pipelineDuration.Observe(durationMs)
}

// RecordFetchDuration records how long one collection read took.
func RecordFetchDuration(collection string, durationMs float64) {
	globalManager.fetchDuration.WithLabelValues(collection).Observe(durationMs)
}

// RecordRecordSkipped counts a malformed record dropped by the aggregator.
func RecordRecordSkipped(kind, reason string) {
	globalManager.recordsSkipped.WithLabelValues(kind, reason).Inc()
}

// UpdateLeaderboardEntries sets the size of the last leaderboard written for metric.
func UpdateLeaderboardEntries(metric string, n int) {
	globalManager.leaderboardEntries.WithLabelValues(metric).Set(float64(n))
}

// RecordTriggerDecision counts a trigger outcome: run, ignored or duplicate.
func RecordTriggerDecision(decision string) {
	globalManager.triggerDecisions.WithLabelValues(decision).Inc()
}

// RecordFailureFlagError counts a failed attempt to mark an event as failed.
func RecordFailureFlagError() {
	globalManager.failureFlagErrors.Inc()
}

// RecordNotificationError counts a failed host notification write.
func RecordNotificationError() {
	globalManager.notificationErrors.Inc()
}

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	globalManager.queueEnqueued.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	globalManager.queueDequeued.Inc()
}

// RecordQueueError counts a rejected enqueue by reason.
func RecordQueueError(reason string) {
	globalManager.queueErrors.WithLabelValues(reason).Inc()
}

// UpdateWorkerActiveCount sets the number of active workers.
func UpdateWorkerActiveCount(count int) {
	globalManager.workerActive.Set(float64(count))
}

// RecordWorkerRetry increments the redelivery counter.
func RecordWorkerRetry() {
	globalManager.workerRetries.Inc()
}

// RecordWorkerFailure counts a change given up on.
func RecordWorkerFailure() {
	globalManager.workerFailures.Inc()
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
