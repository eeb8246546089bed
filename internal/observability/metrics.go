package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RedisErrorRate counts Redis errors by operation type.
	RedisErrorRate = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "devconnector_redis_error_rate_total",
		Help: "Total number of Redis errors by operation type",
	}, []string{"operation"})

	// CacheLookups counts cache-aside lookups by cache name and result (hit, miss).
	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "devconnector_cache_lookups_total",
		Help: "Cache-aside lookups by cache and result",
	}, []string{"cache", "result"})

	// DatabaseQueryLatency records database query latency by operation and table.
	DatabaseQueryLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "devconnector_database_query_latency_seconds",
		Help:    "Database query latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "table"})

	// LikeToggles counts like and unlike outcomes.
	LikeToggles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "devconnector_like_toggles_total",
		Help: "Like and unlike attempts by action and outcome",
	}, []string{"action", "outcome"})

	// ProfileVersionConflicts counts optimistic-lock retries on profile sequence writes.
	ProfileVersionConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "devconnector_profile_version_conflicts_total",
		Help: "Profile sequence writes that lost a concurrent race and were retried",
	})

	// GithubRequests counts outbound repository lookups by outcome.
	GithubRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "devconnector_github_requests_total",
		Help: "Outbound GitHub repository lookups by outcome",
	}, []string{"outcome"})

	// WebSocketConnectionsTotal is the gauge of total WebSocket connections.
	WebSocketConnectionsTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "devconnector_websocket_connections_total",
		Help: "Total number of active WebSocket connections",
	})

	// WebSocketBackpressureDrops counts messages dropped due to backpressure by hub and reason.
	WebSocketBackpressureDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "devconnector_websocket_backpressure_drops_total",
		Help: "Total number of WebSocket messages dropped due to backpressure",
	}, []string{"hub", "reason"})
)

// TrackQuery returns a function that records query latency when called (e.g. defer).
func TrackQuery(operation, table string) func() {
	start := time.Now()
	return func() {
		DatabaseQueryLatency.WithLabelValues(operation, table).Observe(time.Since(start).Seconds())
	}
}
