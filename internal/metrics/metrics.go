// Package metrics holds the Prometheus collectors shared by the API.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// GateDecisions counts quota gate outcomes by outcome and denial reason.
	GateDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "squigly_gate_decisions_total",
			Help: "Analysis gate decisions, by outcome and reason.",
		},
		[]string{"outcome", "reason"},
	)

	// TokenRefreshes counts OAuth refresh attempts by result.
	TokenRefreshes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "squigly_token_refreshes_total",
			Help: "YouTube access token refreshes, by result.",
		},
		[]string{"result"},
	)

	// UpstreamDuration times calls to YouTube, the LLM and Stripe.
	UpstreamDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "squigly_upstream_request_duration_seconds",
			Help:    "Duration of calls to external services, by service and result.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"service", "result"},
	)

	// WebhookEvents counts Stripe webhook deliveries by event type and result.
	WebhookEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "squigly_billing_webhook_events_total",
			Help: "Billing webhook events, by type and result.",
		},
		[]string{"type", "result"},
	)

	// CacheLookups counts Redis analysis cache lookups.
	CacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "squigly_analysis_cache_lookups_total",
			Help: "Redis analysis cache lookups, by result.",
		},
		[]string{"result"},
	)

	// RequestDuration times HTTP requests by route template.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "squigly_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds, by route, method and status.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method", "status"},
	)
)

func init() {
	prometheus.MustRegister(
		GateDecisions,
		TokenRefreshes,
		UpstreamDuration,
		WebhookEvents,
		CacheLookups,
		RequestDuration,
	)
}

// RegisterPool exposes live pgx pool statistics. Call once at startup.
func RegisterPool(pool *pgxpool.Pool) {
	prometheus.MustRegister(
		prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: "squigly_db_pool_acquired_connections",
				Help: "Number of acquired database connections.",
			},
			func() float64 { return float64(pool.Stat().AcquiredConns()) },
		),
		prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: "squigly_db_pool_idle_connections",
				Help: "Number of idle database connections.",
			},
			func() float64 { return float64(pool.Stat().IdleConns()) },
		),
	)
}

// ObserveUpstream records the duration of an external call started at start.
func ObserveUpstream(service string, start time.Time, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	UpstreamDuration.WithLabelValues(service, result).Observe(time.Since(start).Seconds())
}

// Middleware records request duration labelled by the matched route template,
// so path parameters do not explode cardinality.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		RequestDuration.
			WithLabelValues(route, c.Request.Method, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}

// Handler serves the Prometheus exposition format.
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
