package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every collector exposed by this service.
var Registry = prometheus.NewRegistry()

var (
	webhookEventsReceived = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_events_received_total",
		Help: "Verified webhook events by event type",
	}, []string{"event_type"})
	webhookVerificationFailed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "webhook_verification_failed_total",
		Help: "Webhook requests rejected by signature verification",
	})
	webhookParseFailed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "webhook_parse_failed_total",
		Help: "Verified webhook requests with a malformed envelope",
	})
	webhookDuplicates = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "webhook_duplicate_deliveries_total",
		Help: "Webhook deliveries acknowledged without enqueueing because the delivery id was already seen",
	})
	tasksEnqueued = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tasks_enqueued_total",
		Help: "Tasks handed to the queue by task name",
	}, []string{"task"})
	tasksEnqueueFailed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tasks_enqueue_failed_total",
		Help: "Enqueue attempts that returned an error",
	}, []string{"task"})

	workerTasksReceived = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "worker_tasks_received_total",
		Help: "Queue deliveries received by the worker",
	})
	workerTasksCompleted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "worker_tasks_completed_total",
		Help: "Tasks processed successfully and acknowledged",
	}, []string{"task"})
	workerTasksFailed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "worker_tasks_failed_total",
		Help: "Tasks that failed and were left for redelivery",
	}, []string{"task"})
	workerTasksUnrecoverable = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "worker_tasks_deleted_unrecoverable_total",
		Help: "Deliveries acknowledged without processing because they could not be decoded or dispatched",
	})
	workerTasksDeadLettered = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "worker_tasks_dead_lettered_total",
		Help: "Tasks moved to the dead list after exhausting their attempts",
	}, []string{"task"})
	taskDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "worker_task_duration_seconds",
		Help:    "Task processing duration",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
	}, []string{"task", "outcome"})

	attachmentsUploaded = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "attachments_uploaded_total",
		Help: "Attachment objects written to object storage",
	})
	attachmentsSkipped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "attachments_skipped_storage_disabled_total",
		Help: "Attachments skipped because object storage is not configured",
	})
	recordsCommitted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "attachment_records_committed_total",
		Help: "Attachment metadata rows committed",
	})
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		webhookEventsReceived,
		webhookVerificationFailed,
		webhookParseFailed,
		webhookDuplicates,
		tasksEnqueued,
		tasksEnqueueFailed,
		workerTasksReceived,
		workerTasksCompleted,
		workerTasksFailed,
		workerTasksUnrecoverable,
		workerTasksDeadLettered,
		taskDuration,
		attachmentsUploaded,
		attachmentsSkipped,
		recordsCommitted,
	)
}

func IncWebhookEvent(eventType string) { webhookEventsReceived.WithLabelValues(eventType).Inc() }
func IncVerificationFailed() { webhookVerificationFailed.Inc() }
func IncParseFailed() { webhookParseFailed.Inc() }
func IncDuplicateDelivery() { webhookDuplicates.Inc() }
func IncTaskEnqueued(task string) { tasksEnqueued.WithLabelValues(task).Inc() }
func IncEnqueueFailed(task string) { tasksEnqueueFailed.WithLabelValues(task).Inc() }

func IncTasksReceived() { workerTasksReceived.Inc() }
func IncTaskCompleted(task string) { workerTasksCompleted.WithLabelValues(task).Inc() }
func IncTaskFailed(task string) { workerTasksFailed.WithLabelValues(task).Inc() }
func IncTaskDeletedUnrecoverable() { workerTasksUnrecoverable.Inc() }
func IncTaskDeadLettered(task string) { workerTasksDeadLettered.WithLabelValues(task).Inc() }

// ObserveTaskDuration records how long a task took, labelled by outcome.
func ObserveTaskDuration(task, outcome string, seconds float64) {
	if seconds < 0 {
		seconds = 0
	}
	taskDuration.WithLabelValues(task, outcome).Observe(seconds)
}

func AddAttachmentsUploaded(n int) { attachmentsUploaded.Add(float64(n)) }
func AddAttachmentsSkipped(n int) { attachmentsSkipped.Add(float64(n)) }
func AddRecordsCommitted(n int) { recordsCommitted.Add(float64(n)) }

// Handler exposes metrics in Prometheus text format.
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.HandlerFor(Registry, promhttp.HandlerOpts{}))
}
