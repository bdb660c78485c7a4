// Package metrics provides Prometheus instrumentation for the protocol service.
package metrics

import (
	"context"
	"database/sql"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "arbiter",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "arbiter",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// JudgesRegisteredTotal counts judge registrations.
	JudgesRegisteredTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "arbiter",
		Name:      "judges_registered_total",
		Help:      "Total judges registered with the protocol.",
	})

	// DisputesCreatedTotal counts disputes opened.
	DisputesCreatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "arbiter",
		Name:      "disputes_created_total",
		Help:      "Total disputes created.",
	})

	// DisputesResolvedTotal counts resolved disputes by winner.
	DisputesResolvedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "arbiter",
			Name:      "disputes_resolved_total",
			Help:      "Total disputes resolved, labeled by winning side.",
		},
		[]string{"winner"},
	)

	// DisputesClosedTotal counts disputes abandoned before voting.
	DisputesClosedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "arbiter",
		Name:      "disputes_closed_total",
		Help:      "Total disputes closed without resolution.",
	})

	// VoteCommitsTotal counts vote commitments stored.
	VoteCommitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "arbiter",
		Name:      "vote_commits_total",
		Help:      "Total vote commitments stored.",
	})

	// VoteRevealsTotal counts successful reveals by vote direction.
	VoteRevealsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "arbiter",
			Name:      "vote_reveals_total",
			Help:      "Total vote reveals, labeled by vote direction.",
		},
		[]string{"vote"},
	)

	// RevealMismatchesTotal counts reveals rejected for commitment mismatch.
	RevealMismatchesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "arbiter",
		Name:      "reveal_mismatches_total",
		Help:      "Total reveals rejected because the recomputed hash did not match the commitment.",
	})

	// SettlementPayoutsTotal counts judge reward credits applied at settlement.
	SettlementPayoutsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "arbiter",
		Name:      "settlement_payouts_total",
		Help:      "Total judge reward payouts applied at settlement.",
	})

	// DisputeResolutionDuration observes time from dispute creation to resolution.
	DisputeResolutionDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "arbiter",
		Name:      "dispute_resolution_duration_seconds",
		Help:      "Time from dispute creation to resolution in seconds.",
		Buckets:   []float64{10, 30, 60, 120, 300, 600, 1800, 3600, 86400},
	})

	// ActiveWebSocketClients tracks connected WebSocket clients.
	ActiveWebSocketClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "arbiter",
		Name:      "active_websocket_clients",
		Help:      "Number of currently connected WebSocket clients.",
	})

	// DBOpenConnections tracks open database connections.
	DBOpenConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "arbiter", Name: "db_open_connections",
		Help: "Number of open database connections.",
	})
	// DBIdleConnections tracks idle database connections.
	DBIdleConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "arbiter", Name: "db_idle_connections",
		Help: "Number of idle database connections.",
	})
	// DBInUseConnections tracks in-use database connections.
	DBInUseConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "arbiter", Name: "db_in_use_connections",
		Help: "Number of in-use database connections.",
	})
	// GoroutineCount tracks the current number of goroutines.
	GoroutineCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "arbiter", Name: "goroutines",
		Help: "Current number of goroutines.",
	})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		JudgesRegisteredTotal,
		DisputesCreatedTotal,
		DisputesResolvedTotal,
		DisputesClosedTotal,
		VoteCommitsTotal,
		VoteRevealsTotal,
		RevealMismatchesTotal,
		SettlementPayoutsTotal,
		DisputeResolutionDuration,
		ActiveWebSocketClients,
		DBOpenConnections,
		DBIdleConnections,
		DBInUseConnections,
		GoroutineCount,
	)
}

// StartDBStatsCollector periodically samples sql.DBStats and runtime goroutine
// count into Prometheus gauges. Call in a goroutine; exits when ctx is done.
func StartDBStatsCollector(ctx context.Context, db *sql.DB, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := db.Stats()
			DBOpenConnections.Set(float64(stats.OpenConnections))
			DBIdleConnections.Set(float64(stats.Idle))
			DBInUseConnections.Set(float64(stats.InUse))
			GoroutineCount.Set(float64(runtime.NumGoroutine()))
		}
	}
}

// Middleware returns a gin middleware that records request metrics.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		timer := prometheus.NewTimer(HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(), // Uses route pattern, not actual path (avoids cardinality explosion)
		))

		c.Next()

		timer.ObserveDuration()
		HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			statusBucket(c.Writer.Status()),
		).Inc()
	}
}

// Handler returns the Prometheus metrics HTTP handler for /metrics endpoint.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// statusBucket groups HTTP status codes into buckets (2xx, 3xx, 4xx, 5xx).
func statusBucket(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
