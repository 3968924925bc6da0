package observer

import (
	"strings"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "concierge"

var metricsEnabled atomic.Bool

func init() {
	metricsEnabled.Store(true)
}

// InitMetrics toggles collection. Collectors are registered by promauto at
// package init either way; disabling only skips the observations.
func InitMetrics(enabled bool) {
	metricsEnabled.Store(enabled)
}

func enabled() bool { return metricsEnabled.Load() }

// Webhook event consumption.
var (
	eventProcessingLabels = []string{"event_type", "tenant_id", "consumer_type"}
	eventActionLabels     = []string{"event_type", "tenant_id", "consumer_type", "action", "error_type"}

	EventsReceivedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_received_total",
			Help:      "Total number of webhook events received from NATS.",
		},
		eventProcessingLabels,
	)
	EventsProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_processed_total",
			Help:      "Total number of webhook events processed and acknowledged.",
		},
		eventProcessingLabels,
	)
	EventsFailedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_failed_total",
			Help:      "Total number of webhook events that failed processing.",
		},
		eventProcessingLabels,
	)
	EventProcessingDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "event_processing_duration_seconds",
			Help:      "Histogram of webhook event processing durations.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~20s
		},
		eventProcessingLabels,
	)
	EventProcessingActionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_processing_actions_total",
			Help:      "Outcome of each processed event (ack, nak, term, dlq).",
		},
		eventActionLabels,
	)
)

// DLQ worker.
var (
	dlqTenantLabels = []string{"tenant_id"}

	dlqFetchRequestsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "dlq_fetch_requests_total",
		Help:      "Total number of fetch requests made to the DLQ stream.",
	})
	dlqFetchErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "dlq_fetch_errors_total",
		Help:      "Total number of errors encountered during DLQ fetch requests.",
	})
	dlqQueueLength = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "dlq_queue_length",
		Help:      "Current number of messages waiting in the DLQ worker pool.",
	})
	dlqWorkersActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "dlq_workers_active",
		Help:      "Current number of running DLQ workers.",
	})
	dlqTasksSubmittedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "dlq_tasks_submitted_total",
		Help:      "Total number of tasks submitted to the DLQ worker pool.",
	}, dlqTenantLabels)
	dlqProcessingDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "dlq_processing_duration_seconds",
		Help:      "Histogram of processing durations for DLQ messages.",
		Buckets:   prometheus.DefBuckets,
	}, dlqTenantLabels)
	dlqTaskRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "dlq_task_retries_total",
		Help:      "Total number of delayed NAKs issued for DLQ messages.",
	}, dlqTenantLabels)
	dlqAcksSuccessTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "dlq_acks_success_total",
		Help:      "Total number of DLQ messages acknowledged after a successful replay.",
	}, dlqTenantLabels)
	dlqAcksFailureTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "dlq_acks_failure_total",
		Help:      "Total number of DLQ messages that failed replay without retry.",
	}, dlqTenantLabels)
	dlqTasksDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "dlq_tasks_dropped_total",
		Help:      "Total number of DLQ messages dropped after exceeding max retries.",
	}, dlqTenantLabels)
)

// Database.
var DatabaseOperationDurationSeconds = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "db_operation_duration_seconds",
		Help:      "Histogram of database operation durations.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~16s
	},
	[]string{"operation", "entity", "status"},
)

// Reply worker pool.
var (
	replyTasksSubmittedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reply_tasks_submitted_total",
		Help:      "Total number of reply tasks submitted to the worker pool.",
	}, []string{"tenant_id"})
	replyTasksProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reply_tasks_processed_total",
		Help:      "Total number of reply tasks processed, labeled by final status.",
	}, []string{"tenant_id", "status"})
	replyProcessingDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "reply_processing_duration_seconds",
		Help:      "Histogram of reply task durations, including the LLM call.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
	}, []string{"tenant_id"})
	replyQueueLength = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "reply_queue_length",
		Help:      "Approximate number of reply tasks waiting in the pool.",
	})
	workerPanicsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "worker_panics_total",
		Help:      "Total number of panics recovered in worker pools.",
	}, []string{"pool"})
)

// Inbound pipeline, sessions, LLM and reminders.
var (
	inboundMessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "inbound_messages_total",
		Help:      "Inbound chat messages by platform and pipeline outcome.",
	}, []string{"platform", "outcome"})
	sessionTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "session_transitions_total",
		Help:      "Session status changes by target status.",
	}, []string{"status"})
	sessionReconnectsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "session_reconnects_total",
		Help:      "Reconnect cycles by outcome.",
	}, []string{"outcome"})
	llmRequestDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "llm_request_duration_seconds",
		Help:      "Duration of LLM provider calls.",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
	}, []string{"kind", "status"})
	remindersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reminders_total",
		Help:      "Reminder dispatch attempts by interval and result.",
	}, []string{"interval", "result"})
	reminderSweepDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "reminder_sweep_duration_seconds",
		Help:      "Duration of a full reminder sweep.",
		Buckets:   prometheus.DefBuckets,
	})
	cacheChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_checks_total",
		Help:      "Contact cache lookups by filter and result.",
	}, []string{"filter", "result"})
	httpRequestDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request durations by route pattern.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route", "code"})
)

// Load generator.
var (
	loadgenLabels = []string{"subject", "tenant_id"}

	loadgenMessagesAttemptedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "loadgen_messages_attempted_total",
		Help:      "Total number of messages the load generator attempted to publish.",
	}, loadgenLabels)
	loadgenMessagesPublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "loadgen_messages_published_total",
		Help:      "Total number of messages successfully published by the load generator.",
	}, loadgenLabels)
	loadgenPublishErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "loadgen_publish_errors_total",
		Help:      "Total number of publish errors seen by the load generator.",
	}, loadgenLabels)
)

func sanitizeTenant(tenant string) string {
	if tenant == "" {
		return "unknown"
	}
	return tenant
}

func statusOf(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

func IncEventsReceived(eventType, tenant, consumerType string) {
	if !enabled() {
		return
	}
	EventsReceivedTotal.WithLabelValues(eventType, sanitizeTenant(tenant), consumerType).Inc()
}

func IncEventsProcessed(eventType, tenant, consumerType string) {
	if !enabled() {
		return
	}
	EventsProcessedTotal.WithLabelValues(eventType, sanitizeTenant(tenant), consumerType).Inc()
}

func IncEventsFailed(eventType, tenant, consumerType string) {
	if !enabled() {
		return
	}
	EventsFailedTotal.WithLabelValues(eventType, sanitizeTenant(tenant), consumerType).Inc()
}

func ObserveEventProcessingDuration(eventType, tenant, consumerType string, duration time.Duration) {
	if !enabled() {
		return
	}
	EventProcessingDurationSeconds.WithLabelValues(eventType, sanitizeTenant(tenant), consumerType).Observe(duration.Seconds())
}

// IncEventProcessingAction counts the ack decision taken for an event.
func IncEventProcessingAction(eventType, tenant, consumerType, action, errorType string) {
	if !enabled() {
		return
	}
	EventProcessingActionsTotal.WithLabelValues(eventType, sanitizeTenant(tenant), consumerType, action, SanitizeErrorType(errorType)).Inc()
}

// SanitizeErrorType buckets an error string into a low-cardinality label.
func SanitizeErrorType(errStr string) string {
	if errStr == "" || errStr == "none" {
		return "none"
	}
	switch {
	case strings.Contains(errStr, "database"), strings.Contains(errStr, "SQL"), strings.Contains(errStr, "duplicate key"), strings.Contains(errStr, "constraint"), strings.Contains(errStr, "connection"):
		return "database"
	case strings.Contains(errStr, "validation failed"), strings.Contains(errStr, "bad request"), strings.Contains(errStr, "invalid"), strings.Contains(errStr, "missing field"):
		return "validation"
	case strings.Contains(errStr, "not found"), strings.Contains(errStr, "no rows"):
		return "not_found"
	case strings.Contains(errStr, "missing configuration"):
		return "configuration"
	case strings.Contains(errStr, "integration failure"):
		return "integration"
	case strings.Contains(errStr, "nats"), strings.Contains(errStr, "jetstream"):
		return "nats"
	case strings.Contains(errStr, "timeout"), strings.Contains(errStr, "deadline exceeded"):
		return "timeout"
	case strings.Contains(errStr, "unmarshal"), strings.Contains(errStr, "json"):
		return "unmarshal"
	case strings.Contains(errStr, "panic"):
		return "panic"
	default:
		return "unknown"
	}
}

func IncDlqFetchRequest() {
	if enabled() {
		dlqFetchRequestsTotal.Inc()
	}
}

func IncDlqFetchError() {
	if enabled() {
		dlqFetchErrorsTotal.Inc()
	}
}

func SetDlqQueueLength(length int) {
	if enabled() {
		dlqQueueLength.Set(float64(length))
	}
}

func SetDlqWorkersActive(count int) {
	if enabled() {
		dlqWorkersActive.Set(float64(count))
	}
}

func IncDlqTasksSubmitted(tenant string) {
	if enabled() {
		dlqTasksSubmittedTotal.WithLabelValues(sanitizeTenant(tenant)).Inc()
	}
}

func ObserveDlqProcessingDuration(tenant string, duration time.Duration) {
	if enabled() {
		dlqProcessingDurationSeconds.WithLabelValues(sanitizeTenant(tenant)).Observe(duration.Seconds())
	}
}

func IncDlqTaskRetry(tenant string) {
	if enabled() {
		dlqTaskRetriesTotal.WithLabelValues(sanitizeTenant(tenant)).Inc()
	}
}

func IncDlqAckSuccess(tenant string) {
	if enabled() {
		dlqAcksSuccessTotal.WithLabelValues(sanitizeTenant(tenant)).Inc()
	}
}

func IncDlqAckFailure(tenant string) {
	if enabled() {
		dlqAcksFailureTotal.WithLabelValues(sanitizeTenant(tenant)).Inc()
	}
}

func IncDlqTasksDropped(tenant string) {
	if enabled() {
		dlqTasksDroppedTotal.WithLabelValues(sanitizeTenant(tenant)).Inc()
	}
}

// ObserveDbOperationDuration records a repository call. Tenant is left out
// of the labels; the table is shared by all tenants.
func ObserveDbOperationDuration(operation, entity string, duration time.Duration, err error) {
	if !enabled() {
		return
	}
	DatabaseOperationDurationSeconds.WithLabelValues(operation, entity, statusOf(err)).Observe(duration.Seconds())
}

func IncReplyTasksSubmitted(tenant string) {
	if enabled() {
		replyTasksSubmittedTotal.WithLabelValues(sanitizeTenant(tenant)).Inc()
	}
}

func IncReplyTasksProcessed(tenant, status string) {
	if enabled() {
		replyTasksProcessedTotal.WithLabelValues(sanitizeTenant(tenant), status).Inc()
	}
}

func ObserveReplyProcessingDuration(tenant string, duration time.Duration) {
	if enabled() {
		replyProcessingDurationSeconds.WithLabelValues(sanitizeTenant(tenant)).Observe(duration.Seconds())
	}
}

func SetReplyQueueLength(length int) {
	if enabled() {
		replyQueueLength.Set(float64(length))
	}
}

func IncWorkerPanic(pool string) {
	if enabled() {
		workerPanicsTotal.WithLabelValues(pool).Inc()
	}
}

func IncInboundMessage(platform, outcome string) {
	if enabled() {
		inboundMessagesTotal.WithLabelValues(platform, outcome).Inc()
	}
}

func IncSessionTransition(status string) {
	if enabled() {
		sessionTransitionsTotal.WithLabelValues(status).Inc()
	}
}

func IncSessionReconnect(outcome string) {
	if enabled() {
		sessionReconnectsTotal.WithLabelValues(outcome).Inc()
	}
}

func ObserveLLMRequest(kind string, duration time.Duration, err error) {
	if enabled() {
		llmRequestDurationSeconds.WithLabelValues(kind, statusOf(err)).Observe(duration.Seconds())
	}
}

// IncReminder counts a reminder outcome: sent, skipped or failed.
func IncReminder(interval, result string) {
	if enabled() {
		remindersTotal.WithLabelValues(interval, result).Inc()
	}
}

func ObserveReminderSweep(duration time.Duration) {
	if enabled() {
		reminderSweepDurationSeconds.Observe(duration.Seconds())
	}
}

func IncCacheCheck(filter, result string) {
	if enabled() {
		cacheChecksTotal.WithLabelValues(filter, result).Inc()
	}
}

func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	if enabled() {
		httpRequestDurationSeconds.WithLabelValues(method, route, httpCode(code)).Observe(duration.Seconds())
	}
}

func httpCode(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

func IncLoadgenMessagesAttempted(subject, tenant string) {
	if enabled() {
		loadgenMessagesAttemptedTotal.WithLabelValues(subject, sanitizeTenant(tenant)).Inc()
	}
}

func IncLoadgenMessagesPublished(subject, tenant string) {
	if enabled() {
		loadgenMessagesPublishedTotal.WithLabelValues(subject, sanitizeTenant(tenant)).Inc()
	}
}

func IncLoadgenPublishErrors(subject, tenant string) {
	if enabled() {
		loadgenPublishErrorsTotal.WithLabelValues(subject, sanitizeTenant(tenant)).Inc()
	}
}
