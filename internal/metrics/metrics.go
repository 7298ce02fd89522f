// Package metrics provides Prometheus instrumentation for the fraud decision core.
package metrics

import (
	"context"
	"database/sql"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "payguard",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "payguard",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// ChecksTotal counts fraud checks by action and detection method.
	ChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "payguard",
			Name:      "fraud_checks_total",
			Help:      "Total fraud checks by resulting action and detection method.",
		},
		[]string{"action", "method"},
	)

	// CheckDuration observes end-to-end fraud check latency.
	CheckDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "payguard",
			Name:      "fraud_check_duration_seconds",
			Help:      "End-to-end fraud check duration in seconds.",
			Buckets:   []float64{.005, .01, .05, .1, .5, 1, 2.5, 5, 10, 15},
		},
	)

	// RulesFiredTotal counts fired rules by name.
	RulesFiredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "payguard",
			Name:      "rules_fired_total",
			Help:      "Total rule firings by rule name.",
		},
		[]string{"rule"},
	)

	// AssessorCallsTotal counts AI assessor calls by outcome.
	AssessorCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "payguard",
			Name:      "assessor_calls_total",
			Help:      "Total AI assessor calls by outcome (ok, rate_limited, disabled, api_error, timeout).",
		},
		[]string{"outcome"},
	)

	// CustodyTransitionsTotal counts custody state transitions.
	CustodyTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "payguard",
			Name:      "custody_transitions_total",
			Help:      "Total custody transitions by target state.",
		},
		[]string{"to_state"},
	)

	// HeldTransfers tracks the number of transfers currently held.
	HeldTransfers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "payguard",
			Name:      "held_transfers",
			Help:      "Number of transfers currently in the held state.",
		},
	)

	// GroundTruthLabelsTotal counts ground-truth labels by confusion class.
	GroundTruthLabelsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "payguard",
			Name:      "ground_truth_labels_total",
			Help:      "Total ground-truth labels recorded by confusion class.",
		},
		[]string{"class"},
	)

	// DBOpenConnections tracks open database connections.
	DBOpenConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "payguard", Name: "db_open_connections",
		Help: "Number of open database connections.",
	})
	// DBIdleConnections tracks idle database connections.
	DBIdleConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "payguard", Name: "db_idle_connections",
		Help: "Number of idle database connections.",
	})
	// DBInUseConnections tracks in-use database connections.
	DBInUseConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "payguard", Name: "db_in_use_connections",
		Help: "Number of in-use database connections.",
	})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		ChecksTotal,
		CheckDuration,
		RulesFiredTotal,
		AssessorCallsTotal,
		CustodyTransitionsTotal,
		HeldTransfers,
		GroundTruthLabelsTotal,
		DBOpenConnections,
		DBIdleConnections,
		DBInUseConnections,
	)
}

// Middleware returns a gin middleware that records request counts and latency.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := c.Writer.Status()

		HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, statusLabel(status)).Inc()
		HTTPRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

// Handler returns the Prometheus scrape handler wrapped for gin.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// CollectDBStats samples sql.DB pool stats into gauges every interval.
// Call in a goroutine; returns when ctx is done.
func CollectDBStats(ctx context.Context, db *sql.DB, interval time.Duration) {
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
		}
	}
}

func statusLabel(code int) string {
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
