package observer

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricsEnabled = true

	eventProcessingLabels = []string{"event_type", "owner_id", "consumer_type"}
	eventActionLabels     = []string{"event_type", "owner_id", "consumer_type", "action", "error_type"}

	EventsReceivedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lead_pipeline_events_received_total",
			Help: "Total number of inbound events received from NATS.",
		},
		eventProcessingLabels,
	)
	EventProcessingDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lead_pipeline_event_processing_duration_seconds",
			Help:    "Time spent handling one inbound NATS event.",
			Buckets: prometheus.DefBuckets,
		},
		eventProcessingLabels,
	)
	EventProcessingActionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lead_pipeline_event_processing_actions_total",
			Help: "Ack, nak, nak_delay and dlq decisions taken by the inbound consumer.",
		},
		eventActionLabels,
	)

	DatabaseOperationDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lead_pipeline_db_operation_duration_seconds",
			Help:    "Duration of database operations.",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"operation", "entity", "owner_id", "status"},
	)

	IngestOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lead_pipeline_ingest_outcomes_total",
			Help: "Inbound messages by outcome: created, matched, unmatched, replayed, invalid or failed.",
		},
		[]string{"origen", "outcome"},
	)
	WebhookLogFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lead_pipeline_webhook_log_failures_total",
			Help: "Inbound calls whose audit entry could not be stored.",
		},
		[]string{"origen"},
	)
	LedgerEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lead_pipeline_ledger_events_total",
			Help: "Lead events recorded, by type.",
		},
		[]string{"type"},
	)
	StageChangesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lead_pipeline_stage_changes_total",
			Help: "Pipeline stage changes, by target stage.",
		},
		[]string{"etapa"},
	)
	KPIComputationDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "lead_pipeline_kpi_computation_duration_seconds",
			Help:    "Time spent computing a KPI report, store reads included.",
			Buckets: prometheus.DefBuckets,
		},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lead_pipeline_http_requests_total",
			Help: "HTTP requests served, by route and status code.",
		},
		[]string{"method", "route", "status"},
	)
	HTTPRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lead_pipeline_http_request_duration_seconds",
			Help:    "HTTP request latency, by route.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	loadgenMessagesAttemptedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loadgen_messages_attempted_total",
			Help: "Messages the load generator tried to publish.",
		},
		[]string{"subject", "kind"},
	)
	loadgenMessagesPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loadgen_messages_published_total",
			Help: "Messages the load generator published successfully.",
		},
		[]string{"subject", "kind"},
	)
	loadgenPublishErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loadgen_publish_errors_total",
			Help: "Publish failures seen by the load generator.",
		},
		[]string{"subject"},
	)
)

// InitMetrics turns metric collection on or off. Collectors stay registered
// either way; disabled helpers are no-ops.
func InitMetrics(enabled bool) {
	metricsEnabled = enabled
}

// Enabled reports whether metric helpers record anything.
func Enabled() bool {
	return metricsEnabled
}

func sanitizeOwner(owner string) string {
	if owner == "" {
		return "unknown"
	}
	return owner
}

func IncEventsReceived(eventType, owner, consumerType string) {
	if !metricsEnabled {
		return
	}
	EventsReceivedTotal.WithLabelValues(eventType, sanitizeOwner(owner), consumerType).Inc()
}

func ObserveEventProcessingDuration(eventType, owner, consumerType string, duration time.Duration) {
	if !metricsEnabled {
		return
	}
	EventProcessingDurationSeconds.WithLabelValues(eventType, sanitizeOwner(owner), consumerType).Observe(duration.Seconds())
}

// IncEventProcessingAction counts one ack/nak/dlq decision.
func IncEventProcessingAction(eventType, owner, consumerType, action, errorType string) {
	if !metricsEnabled {
		return
	}
	EventProcessingActionsTotal.WithLabelValues(eventType, sanitizeOwner(owner), consumerType, action, SanitizeErrorType(errorType)).Inc()
}

// ObserveDbOperationDuration records the duration for a database operation.
func ObserveDbOperationDuration(operation, entity, owner string, duration time.Duration, err error) {
	if !metricsEnabled {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	DatabaseOperationDurationSeconds.WithLabelValues(operation, entity, sanitizeOwner(owner), status).Observe(duration.Seconds())
}

func IncIngestOutcome(origen, outcome string) {
	if !metricsEnabled {
		return
	}
	IngestOutcomesTotal.WithLabelValues(origen, outcome).Inc()
}

func IncWebhookLogFailure(origen string) {
	if !metricsEnabled {
		return
	}
	WebhookLogFailuresTotal.WithLabelValues(origen).Inc()
}

func IncLedgerEvent(eventType string) {
	if !metricsEnabled {
		return
	}
	LedgerEventsTotal.WithLabelValues(eventType).Inc()
}

func IncStageChange(etapa string) {
	if !metricsEnabled {
		return
	}
	StageChangesTotal.WithLabelValues(etapa).Inc()
}

func ObserveKPIComputation(duration time.Duration) {
	if !metricsEnabled {
		return
	}
	KPIComputationDurationSeconds.Observe(duration.Seconds())
}

func ObserveHTTPRequest(method, route, status string, duration time.Duration) {
	if !metricsEnabled {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	HTTPRequestsTotal.WithLabelValues(method, route, status).Inc()
	HTTPRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// SanitizeErrorType buckets an error message into a low-cardinality label.
func SanitizeErrorType(errStr string) string {
	if errStr == "" || errStr == "none" {
		return "none"
	}

	switch {
	case strings.Contains(errStr, "validation failed"), strings.Contains(errStr, "bad request"), strings.Contains(errStr, "invalid"):
		return "validation"
	case strings.Contains(errStr, "database"), strings.Contains(errStr, "SQL"), strings.Contains(errStr, "duplicate key"), strings.Contains(errStr, "constraint"), strings.Contains(errStr, "connection"):
		return "database"
	case strings.Contains(errStr, "not found"), strings.Contains(errStr, "no rows"):
		return "not_found"
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

func IncLoadgenMessagesAttempted(subject, kind string) {
	if !metricsEnabled {
		return
	}
	loadgenMessagesAttemptedTotal.WithLabelValues(subject, kind).Inc()
}

func IncLoadgenMessagesPublished(subject, kind string) {
	if !metricsEnabled {
		return
	}
	loadgenMessagesPublishedTotal.WithLabelValues(subject, kind).Inc()
}

func IncLoadgenPublishErrors(subject string) {
	if !metricsEnabled {
		return
	}
	loadgenPublishErrorsTotal.WithLabelValues(subject).Inc()
}
