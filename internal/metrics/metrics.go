// Package metrics holds the Prometheus collectors of the feed service.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// API Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sommelier_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "route", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sommelier_api_request_duration_seconds",
			Help:    "Duration of API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// Feed Metrics
	FeedRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sommelier_feed_requests_total",
			Help: "Total number of feed pages requested",
		},
		[]string{"result"}, // "served", "empty", "error"
	)

	FeedCandidates = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sommelier_feed_candidates",
			Help:    "Number of candidates retrieved per feed page",
			Buckets: []float64{0, 5, 10, 20, 40, 80, 160, 320},
		},
	)

	FeedItemsServed = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sommelier_feed_items_served",
			Help:    "Number of items returned per feed page",
			Buckets: []float64{0, 1, 2, 5, 10, 20, 50},
		},
	)

	FeedDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sommelier_feed_duration_seconds",
			Help:    "Duration of feed page assembly in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Session Metrics
	SessionsStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sommelier_sessions_started_total",
			Help: "Total number of sessions started",
		},
	)

	SessionsCompleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sommelier_sessions_completed_total",
			Help: "Total number of sessions completed",
		},
	)

	SessionsExpired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sommelier_sessions_expired_total",
			Help: "Total number of stale sessions removed by the retention worker",
		},
	)

	ReactionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sommelier_reactions_total",
			Help: "Total number of recorded reactions",
		},
		[]string{"reaction"},
	)

	CartUpdatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sommelier_cart_updates_total",
			Help: "Total number of cart mutations",
		},
		[]string{"operation"}, // "add", "remove"
	)

	// Export Metrics
	CartExportsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sommelier_cart_exports_total",
			Help: "Total number of completed-cart exports",
		},
		[]string{"result"},
	)

	// Store Metrics
	StoreTxDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sommelier_store_tx_duration_seconds",
			Help:    "Duration of store transactions in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	StoreTxErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sommelier_store_tx_errors_total",
			Help: "Total number of failed store transactions",
		},
		[]string{"operation"},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sommelier_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sommelier_circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker",
		},
		[]string{"name", "result"}, // result: "success", "failure", "rejected"
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sommelier_circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)
)

// RecordAPIRequest records one served HTTP request.
func RecordAPIRequest(method, route string, status int, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordStoreTx records the outcome of one store transaction.
func RecordStoreTx(operation string, duration time.Duration, err error) {
	StoreTxDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if err != nil {
		StoreTxErrors.WithLabelValues(operation).Inc()
	}
}

// RecordFeedPage records the size of one assembled feed page.
func RecordFeedPage(candidates, served int, duration time.Duration) {
	FeedCandidates.Observe(float64(candidates))
	FeedItemsServed.Observe(float64(served))
	FeedDuration.Observe(duration.Seconds())
	if served == 0 {
		FeedRequests.WithLabelValues("empty").Inc()
		return
	}
	FeedRequests.WithLabelValues("served").Inc()
}
