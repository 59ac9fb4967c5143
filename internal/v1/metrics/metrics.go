package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for the watch-party coordinator.
//
// Naming convention: namespace_subsystem_name
//   - namespace: watch_party (application-level grouping)
//   - subsystem: websocket, room, upstream, circuit_breaker, rate_limit, redis, heartbeat
//   - name: specific metric (connections_active, events_total, etc.)
//
// Metric Types:
//   - Gauge: current state (connections, rooms, participants)
//   - Counter: cumulative events (messages processed, errors)
//   - Histogram: latency distributions (upstream call time)

var (
	// ActiveWebSocketConnections tracks the current number of connected sessions.
	ActiveWebSocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "watch_party",
		Subsystem: "websocket",
		Name:      "connections_active",
		Help:      "Current number of active WebSocket connections",
	})

	// ActiveRooms tracks the current number of active rooms.
	ActiveRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "watch_party",
		Subsystem: "room",
		Name:      "rooms_active",
		Help:      "Current number of active rooms",
	})

	// RoomParticipants tracks the number of participants in each room.
	RoomParticipants = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "watch_party",
		Subsystem: "room",
		Name:      "participants_count",
		Help:      "Number of participants in each room",
	}, []string{"room_id"})

	// EventsTotal tracks the total number of inbound wire-protocol messages
	// processed, labeled by message type (spec §4.6 dispatch table).
	EventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "watch_party",
		Subsystem: "websocket",
		Name:      "events_total",
		Help:      "Total inbound WebSocket events processed, by message type",
	}, []string{"event_type"})

	// HeartbeatTicks tracks the total number of heartbeat driver ticks
	// (spec §4.5).
	HeartbeatTicks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "watch_party",
		Subsystem: "heartbeat",
		Name:      "ticks_total",
		Help:      "Total number of heartbeat driver ticks",
	})

	// UpstreamRequestDuration tracks latency of calls to the upstream media
	// server / identity service, labeled by the operation performed.
	UpstreamRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "watch_party",
		Subsystem: "upstream",
		Name:      "request_duration_seconds",
		Help:      "Duration of upstream media-server/identity-service calls",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation"})

	// UpstreamRequestsTotal tracks upstream calls, labeled by operation and
	// outcome.
	UpstreamRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "watch_party",
		Subsystem: "upstream",
		Name:      "requests_total",
		Help:      "Total upstream media-server/identity-service calls",
	}, []string{"operation", "status"})

	// CircuitBreakerState tracks the current state of each named circuit
	// breaker. 0: Closed (healthy), 1: Open (failing), 2: Half-Open (probing).
	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "watch_party",
		Subsystem: "circuit_breaker",
		Name:      "state",
		Help:      "Current state of the circuit breaker (0: Closed, 1: Open, 2: Half-Open)",
	}, []string{"service"})

	// CircuitBreakerFailures tracks requests rejected by a circuit breaker.
	CircuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "watch_party",
		Subsystem: "circuit_breaker",
		Name:      "failures_total",
		Help:      "Total requests rejected by the circuit breaker",
	}, []string{"service"})

	// RateLimitExceeded tracks requests that exceeded the rate limit.
	RateLimitExceeded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "watch_party",
		Subsystem: "rate_limit",
		Name:      "exceeded_total",
		Help:      "Total number of requests that exceeded the rate limit",
	}, []string{"endpoint", "reason"})

	// RateLimitRequests tracks requests checked against the rate limiter.
	RateLimitRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "watch_party",
		Subsystem: "rate_limit",
		Name:      "requests_total",
		Help:      "Total number of requests checked against the rate limiter",
	}, []string{"endpoint"})

	// RedisOperationsTotal tracks Redis operations (rate-limit store, health
	// checks), labeled by operation and outcome.
	RedisOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "watch_party",
		Subsystem: "redis",
		Name:      "operations_total",
		Help:      "Total number of Redis operations",
	}, []string{"operation", "status"})

	// RedisOperationDuration tracks the duration of Redis operations.
	RedisOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "watch_party",
		Subsystem: "redis",
		Name:      "operation_duration_seconds",
		Help:      "Duration of Redis operations",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation"})
)

func IncConnection() {
	ActiveWebSocketConnections.Inc()
}

func DecConnection() {
	ActiveWebSocketConnections.Dec()
}
