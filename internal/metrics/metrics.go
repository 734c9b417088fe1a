package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// IntentTransitions counts lifecycle transitions of exchange intents
	IntentTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exchange_intent_transitions_total",
			Help: "Total number of exchange intent status transitions",
		},
		[]string{"from", "to"},
	)

	// OperationRejections counts domain operations refused with a typed error
	OperationRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "operation_rejections_total",
			Help: "Total number of operations rejected by lifecycle or access rules",
		},
		[]string{"operation", "reason"},
	)

	MessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_messages_sent_total",
			Help: "Total number of chat messages sent by participants",
		},
	)

	EvaluationsSubmitted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "evaluations_submitted_total",
			Help: "Total number of evaluations recorded",
		},
	)

	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connections",
			Help: "Current number of registered websocket connections",
		},
	)

	PushNotifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "push_notifications_total",
			Help: "Total number of APNs push attempts",
		},
		[]string{"result"},
	)

	TranscriptArchives = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transcript_archives_total",
			Help: "Total number of chat transcript archive attempts",
		},
		[]string{"result"},
	)

	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "route", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"method", "route"},
	)
)

// RecordTransition records an intent moving between two statuses
func RecordTransition(from, to string) {
	IntentTransitions.WithLabelValues(from, to).Inc()
}

// RecordRejection records a refused operation
func RecordRejection(operation, reason string) {
	OperationRejections.WithLabelValues(operation, reason).Inc()
}

// RecordAPIRequest records one served HTTP request
func RecordAPIRequest(method, route, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, route, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
