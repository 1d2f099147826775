package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Queue depth metrics, one gauge per state-machine queue.
	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "runner_queue_depth",
			Help: "Current number of runtime tasks in each state-machine queue",
		},
		[]string{"queue"},
	)

	TasksTransitioned = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "runner_tasks_transitioned_total",
			Help: "Total number of task transitions between state-machine queues",
		},
		[]string{"from", "to"},
	)

	TasksFinished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "runner_tasks_finished_total",
			Help: "Total number of tasks that reached the finished queue, by label",
		},
		[]string{"label"},
	)

	TaskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "runner_task_duration_seconds",
			Help:    "Wall-clock duration a task spent in the started queue",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 15),
		},
		[]string{"spawner"},
	)

	// Spawner metrics.
	SpawnFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "runner_spawn_failures_total",
			Help: "Total number of spawn_task calls that returned false",
		},
		[]string{"spawner"},
	)

	TaskTimeouts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "runner_task_timeouts_total",
			Help: "Total number of tasks that exceeded their per-task deadline",
		},
	)

	TriageFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "runner_triage_failures_total",
			Help: "Total number of tasks that failed requirement checks",
		},
	)

	// Worker pool metrics.
	ActiveWorkers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "runner_active_workers",
			Help: "Current number of worker goroutines driving the state machine",
		},
	)

	// Status repository metrics.
	StatusRecordsReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "runner_status_records_received_total",
			Help: "Total number of status records ingested by the repository",
		},
		[]string{"status"},
	)

	StatusDecodeErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "runner_status_decode_errors_total",
			Help: "Total number of malformed status frames dropped by the server",
		},
	)

	ResultStats = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "runner_result_total",
			Help: "Current size of each result bucket in the status repository",
		},
		[]string{"result"},
	)

	// Admin HTTP metrics, mirroring the teacher's request instrumentation.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "runner_http_request_duration_seconds",
			Help:    "Admin HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "runner_http_requests_total",
			Help: "Total number of admin HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	WebSocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "runner_websocket_connections",
			Help: "Current number of connected dashboard websocket clients",
		},
	)

	WebSocketMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "runner_websocket_messages_total",
			Help: "Total number of status broadcasts sent to dashboard clients",
		},
		[]string{"status"},
	)

	ArchiveErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "runner_archive_errors_total",
			Help: "Total number of errors writing completed run summaries to the archive",
		},
		[]string{"operation"},
	)
)

// RecordTransition records a single state-machine queue transition.
func RecordTransition(from, to string) {
	TasksTransitioned.WithLabelValues(from, to).Inc()
}

// RecordFinished records a task reaching the finished queue with the given label
// ("" for a normal, unlabeled termination).
func RecordFinished(label string) {
	if label == "" {
		label = "ok"
	}
	TasksFinished.WithLabelValues(label).Inc()
}

// RecordTaskDuration records how long a task spent executing under a spawner.
func RecordTaskDuration(spawner string, seconds float64) {
	TaskDuration.WithLabelValues(spawner).Observe(seconds)
}

// RecordSpawnFailure records a failed spawn_task call.
func RecordSpawnFailure(spawner string) {
	SpawnFailures.WithLabelValues(spawner).Inc()
}

// RecordTaskTimeout records a per-task deadline expiry.
func RecordTaskTimeout() {
	TaskTimeouts.Inc()
}

// RecordTriageFailure records a requirement-check rejection.
func RecordTriageFailure() {
	TriageFailures.Inc()
}

// SetActiveWorkers sets the active worker gauge.
func SetActiveWorkers(count float64) {
	ActiveWorkers.Set(count)
}

// SetQueueDepth sets the depth gauge for a single state-machine queue.
func SetQueueDepth(queue string, depth float64) {
	QueueDepth.WithLabelValues(queue).Set(depth)
}

// RecordStatusRecord records an ingested status record by its status field.
func RecordStatusRecord(status string) {
	StatusRecordsReceived.WithLabelValues(status).Inc()
}

// RecordStatusDecodeError records a dropped malformed frame.
func RecordStatusDecodeError() {
	StatusDecodeErrors.Inc()
}

// SetResultCount sets the current bucket size for a terminal result.
func SetResultCount(result string, count float64) {
	ResultStats.WithLabelValues(result).Set(count)
}

// RecordHTTPRequest records an admin HTTP request.
func RecordHTTPRequest(method, path, status string, duration float64) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration)
	HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
}

// SetWebSocketConnections sets the dashboard websocket connection gauge.
func SetWebSocketConnections(count float64) {
	WebSocketConnections.Set(count)
}

// RecordWebSocketMessage records a broadcast status message sent to dashboard clients.
func RecordWebSocketMessage(status string) {
	WebSocketMessages.WithLabelValues(status).Inc()
}

// RecordArchiveError records a failure writing to the run archive.
func RecordArchiveError(operation string) {
	ArchiveErrors.WithLabelValues(operation).Inc()
}
