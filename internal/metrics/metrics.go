package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taquilla_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "taquilla_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// Checkout
	CheckoutsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taquilla_checkouts_total",
			Help: "Checkout attempts by outcome",
		},
		[]string{"outcome"}, // "created", "reused", "rejected", "error"
	)

	GuardHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "taquilla_checkout_guard_hits_total",
			Help: "Checkouts answered with an intent already created for the same request",
		},
	)

	// Webhooks
	WebhooksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taquilla_webhooks_total",
			Help: "Gateway webhook deliveries by event type and outcome",
		},
		[]string{"type", "outcome"}, // outcome: "processed", "skipped", "ignored", "invalid", "error"
	)

	// Fulfillment
	TicketsIssued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "taquilla_tickets_issued_total",
			Help: "Tickets created for succeeded payments",
		},
	)

	FulfillmentDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "taquilla_fulfillment_duration_seconds",
			Help:    "Duration of fulfillment attempts",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"source", "outcome"}, // source: "confirm", "webhook", "sweep"
	)

	NotificationsFailed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "taquilla_notifications_failed_total",
			Help: "Ticket notifications that could not be dispatched",
		},
	)

	// Payment gateway
	GatewayRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taquilla_gateway_requests_total",
			Help: "Payment gateway calls by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)

	GatewayRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "taquilla_gateway_request_duration_seconds",
			Help:    "Duration of payment gateway calls",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// Circuit breaker
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "taquilla_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taquilla_circuit_breaker_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	// Consumers
	MessagesConsumed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taquilla_messages_consumed_total",
			Help: "Bus messages handled by consumers",
		},
		[]string{"subject", "outcome"},
	)
)

// RecordHTTPRequest records one served request.
func RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	HTTPRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordGatewayCall records one payment gateway call.
func RecordGatewayCall(operation string, err error, duration time.Duration) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	GatewayRequests.WithLabelValues(operation, outcome).Inc()
	GatewayRequestDuration.WithLabelValues(operation).Observe(duration.Seconds())
}
