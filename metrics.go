package uplink

import (
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsCollector provides Prometheus metrics for the request lifecycle,
// the reliability layers, and the session engine. All Record methods are
// nil-receiver safe so instrumentation points never need guarding.
type MetricsCollector struct {
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	requestsInFlight *prometheus.GaugeVec

	retriesTotal *prometheus.CounterVec

	circuitBreakerState *prometheus.GaugeVec

	rateLimiterTokens *prometheus.GaugeVec

	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec
	cacheSize   *prometheus.GaugeVec

	deduplicationHits *prometheus.CounterVec

	retryBudgetExceeded *prometheus.CounterVec

	errorsTotal *prometheus.CounterVec

	sessionState            *prometheus.GaugeVec
	sessionConnectsTotal    *prometheus.CounterVec
	sessionReconnectsTotal  *prometheus.CounterVec
	sessionMessagesSent     *prometheus.CounterVec
	sessionMessagesReceived *prometheus.CounterVec
	sessionHeartbeatsTotal  *prometheus.CounterVec
	sessionQueueDepth       *prometheus.GaugeVec
	sessionQueueDropped     *prometheus.CounterVec
	sessionPendingCalls     *prometheus.GaugeVec

	registerer prometheus.Registerer
}

// NewMetricsCollector creates a collector on the default registerer.
func NewMetricsCollector() *MetricsCollector {
	return NewMetricsCollectorWithRegistry(prometheus.DefaultRegisterer)
}

// NewMetricsCollectorWithRegistry creates a collector using the supplied
// registerer.
func NewMetricsCollectorWithRegistry(registry prometheus.Registerer) *MetricsCollector {
	mc := &MetricsCollector{
		requestsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "uplink_requests_total",
				Help: "Total number of HTTP requests made",
			},
			[]string{"method", "status_code", "endpoint"},
		),
		requestDuration: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "uplink_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "status_code", "endpoint"},
		),
		requestsInFlight: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "uplink_requests_in_flight",
				Help: "Number of HTTP requests currently in flight",
			},
			[]string{"method", "endpoint"},
		),
		retriesTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "uplink_retries_total",
				Help: "Total number of retry attempts",
			},
			[]string{"method", "endpoint", "attempt"},
		),
		circuitBreakerState: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "uplink_circuit_breaker_state",
				Help: "Current state of circuit breaker (0=closed, 1=open, 2=half-open)",
			},
			[]string{"name"},
		),
		rateLimiterTokens: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "uplink_rate_limiter_tokens",
				Help: "Current number of available rate limiter tokens",
			},
			[]string{"name"},
		),
		cacheHits: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "uplink_cache_hits_total",
				Help: "Total number of cache hits",
			},
			[]string{"method", "endpoint"},
		),
		cacheMisses: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "uplink_cache_misses_total",
				Help: "Total number of cache misses",
			},
			[]string{"method", "endpoint"},
		),
		cacheSize: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "uplink_cache_size",
				Help: "Current number of entries in cache",
			},
			[]string{"name"},
		),
		deduplicationHits: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "uplink_deduplication_hits_total",
				Help: "Total number of coalesced duplicate requests",
			},
			[]string{"method", "endpoint"},
		),
		retryBudgetExceeded: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "uplink_retry_budget_exceeded_total",
				Help: "Total number of times the retry budget was exceeded",
			},
			[]string{"host"},
		),
		errorsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "uplink_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type", "method", "endpoint"},
		),
		sessionState: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "uplink_session_state",
				Help: "Current session state (0=closed, 1=connecting, 2=open, 3=closing)",
			},
			[]string{"url"},
		),
		sessionConnectsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "uplink_session_connects_total",
				Help: "Total number of session connection attempts",
			},
			[]string{"url"},
		),
		sessionReconnectsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "uplink_session_reconnects_total",
				Help: "Total number of session reconnection attempts",
			},
			[]string{"url"},
		),
		sessionMessagesSent: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "uplink_session_messages_sent_total",
				Help: "Total number of messages written to the channel",
			},
			[]string{"url"},
		),
		sessionMessagesReceived: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "uplink_session_messages_received_total",
				Help: "Total number of messages received from the channel",
			},
			[]string{"url"},
		),
		sessionHeartbeatsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "uplink_session_heartbeats_total",
				Help: "Total number of heartbeats sent",
			},
			[]string{"url"},
		),
		sessionQueueDepth: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "uplink_session_queue_depth",
				Help: "Current number of messages waiting for reconnection",
			},
			[]string{"url"},
		),
		sessionQueueDropped: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "uplink_session_queue_dropped_total",
				Help: "Total number of queued messages dropped to make room",
			},
			[]string{"url"},
		),
		sessionPendingCalls: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "uplink_session_pending_calls",
				Help: "Current number of correlated calls awaiting replies",
			},
			[]string{"url"},
		),
		registerer: registry,
	}

	return mc
}

// RecordRequest records request count and duration.
func (mc *MetricsCollector) RecordRequest(method, endpoint string, statusCode int, duration time.Duration) {
	if mc == nil {
		return
	}

	statusCodeStr := strconv.Itoa(statusCode)
	mc.requestsTotal.WithLabelValues(method, statusCodeStr, endpoint).Inc()
	mc.requestDuration.WithLabelValues(method, statusCodeStr, endpoint).Observe(duration.Seconds())
}

// RecordRequestStart increments the in-flight gauge.
func (mc *MetricsCollector) RecordRequestStart(method, endpoint string) {
	if mc == nil {
		return
	}

	mc.requestsInFlight.WithLabelValues(method, endpoint).Inc()
}

// RecordRequestEnd decrements the in-flight gauge.
func (mc *MetricsCollector) RecordRequestEnd(method, endpoint string) {
	if mc == nil {
		return
	}

	mc.requestsInFlight.WithLabelValues(method, endpoint).Dec()
}

// RecordRetry increments the retry counter for an attempt.
func (mc *MetricsCollector) RecordRetry(method, endpoint string, attempt int) {
	if mc == nil {
		return
	}

	attemptStr := strconv.Itoa(attempt)
	mc.retriesTotal.WithLabelValues(method, endpoint, attemptStr).Inc()
}

// RecordCircuitBreakerState sets the breaker state gauge.
func (mc *MetricsCollector) RecordCircuitBreakerState(name string, state CircuitState) {
	if mc == nil {
		return
	}

	var stateValue float64
	switch state {
	case CircuitClosed:
		stateValue = 0
	case CircuitOpen:
		stateValue = 1
	case CircuitHalfOpen:
		stateValue = 2
	}

	mc.circuitBreakerState.WithLabelValues(name).Set(stateValue)
}

// RecordRateLimiterTokens sets the available token gauge.
func (mc *MetricsCollector) RecordRateLimiterTokens(name string, tokens int) {
	if mc == nil {
		return
	}

	mc.rateLimiterTokens.WithLabelValues(name).Set(float64(tokens))
}

// RecordCacheHit increments the cache hit counter.
func (mc *MetricsCollector) RecordCacheHit(method, endpoint string) {
	if mc == nil {
		return
	}

	mc.cacheHits.WithLabelValues(method, endpoint).Inc()
}

// RecordCacheMiss increments the cache miss counter.
func (mc *MetricsCollector) RecordCacheMiss(method, endpoint string) {
	if mc == nil {
		return
	}

	mc.cacheMisses.WithLabelValues(method, endpoint).Inc()
}

// RecordCacheSize sets the cache size gauge.
func (mc *MetricsCollector) RecordCacheSize(name string, size int) {
	if mc == nil {
		return
	}

	mc.cacheSize.WithLabelValues(name).Set(float64(size))
}

// RecordError increments the error counter by type.
func (mc *MetricsCollector) RecordError(errorType, method, endpoint string) {
	if mc == nil {
		return
	}

	mc.errorsTotal.WithLabelValues(errorType, method, endpoint).Inc()
}

// RecordDeduplicationHit increments the coalesced-call counter.
func (mc *MetricsCollector) RecordDeduplicationHit(method, endpoint string) {
	if mc == nil {
		return
	}

	mc.deduplicationHits.WithLabelValues(method, endpoint).Inc()
}

// RecordRetryBudgetExceeded increments the budget-exhausted counter.
func (mc *MetricsCollector) RecordRetryBudgetExceeded(endpoint string) {
	if mc == nil {
		return
	}

	host := endpoint
	if idx := strings.Index(endpoint, "/"); idx != -1 {
		host = endpoint[:idx]
	}

	mc.retryBudgetExceeded.WithLabelValues(host).Inc()
}

// RecordSessionState sets the session state gauge.
func (mc *MetricsCollector) RecordSessionState(url string, state SessionState) {
	if mc == nil {
		return
	}

	mc.sessionState.WithLabelValues(url).Set(float64(state))
}

// RecordSessionConnect increments the connection attempt counter.
func (mc *MetricsCollector) RecordSessionConnect(url string) {
	if mc == nil {
		return
	}

	mc.sessionConnectsTotal.WithLabelValues(url).Inc()
}

// RecordSessionReconnect increments the reconnection attempt counter.
func (mc *MetricsCollector) RecordSessionReconnect(url string) {
	if mc == nil {
		return
	}

	mc.sessionReconnectsTotal.WithLabelValues(url).Inc()
}

// RecordSessionMessageSent increments the outbound message counter.
func (mc *MetricsCollector) RecordSessionMessageSent(url string) {
	if mc == nil {
		return
	}

	mc.sessionMessagesSent.WithLabelValues(url).Inc()
}

// RecordSessionMessageReceived increments the inbound message counter.
func (mc *MetricsCollector) RecordSessionMessageReceived(url string) {
	if mc == nil {
		return
	}

	mc.sessionMessagesReceived.WithLabelValues(url).Inc()
}

// RecordSessionHeartbeat increments the heartbeat counter.
func (mc *MetricsCollector) RecordSessionHeartbeat(url string) {
	if mc == nil {
		return
	}

	mc.sessionHeartbeatsTotal.WithLabelValues(url).Inc()
}

// RecordSessionQueueDepth sets the outbound queue depth gauge.
func (mc *MetricsCollector) RecordSessionQueueDepth(url string, depth int) {
	if mc == nil {
		return
	}

	mc.sessionQueueDepth.WithLabelValues(url).Set(float64(depth))
}

// RecordSessionQueueDrop increments the dropped-message counter.
func (mc *MetricsCollector) RecordSessionQueueDrop(url string) {
	if mc == nil {
		return
	}

	mc.sessionQueueDropped.WithLabelValues(url).Inc()
}

// RecordSessionPendingCalls sets the awaiting-reply gauge.
func (mc *MetricsCollector) RecordSessionPendingCalls(url string, n int) {
	if mc == nil {
		return
	}

	mc.sessionPendingCalls.WithLabelValues(url).Set(float64(n))
}

// GetRegistry returns the underlying registry when the collector was built
// on one, or nil for wrapped registerers.
func (mc *MetricsCollector) GetRegistry() *prometheus.Registry {
	if mc == nil {
		return nil
	}
	if r, ok := mc.registerer.(*prometheus.Registry); ok {
		return r
	}
	return nil
}
