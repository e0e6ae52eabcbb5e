package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics of the relay.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	RateLimited         prometheus.Counter

	// Gateway metrics
	CompletionsTotal   *prometheus.CounterVec
	UpstreamDuration   *prometheus.HistogramVec
	BatchParseFailures *prometheus.CounterVec

	// Ledger metrics
	ModelSelections   *prometheus.CounterVec
	CreditsSpent      prometheus.Counter
	LedgerJobAccounts *prometheus.CounterVec
}

// New creates the metrics and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
		RateLimited: factory.NewCounter(prometheus.CounterOpts{
			Name: "http_requests_rate_limited_total",
			Help: "Requests rejected by the per-client rate limiter",
		}),
		CompletionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llm_completions_total",
				Help: "Upstream completions by operation, model and outcome",
			},
			[]string{"operation", "model", "outcome"}, // ok, upstream_error, invalid_reply
		),
		UpstreamDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "llm_upstream_duration_seconds",
				Help:    "Upstream completion latency in seconds",
				Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60, 120},
			},
			[]string{"model"},
		),
		BatchParseFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llm_batch_parse_failures_total",
				Help: "Batch replies rejected by the structured reply parser",
			},
			[]string{"reason"}, // malformed, shape, length
		),
		ModelSelections: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_model_selections_total",
				Help: "Model tier chosen per request",
			},
			[]string{"tier"}, // premium, free
		),
		CreditsSpent: factory.NewCounter(prometheus.CounterOpts{
			Name: "ledger_credits_spent_total",
			Help: "Credits deducted from user balances",
		}),
		LedgerJobAccounts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_job_accounts_updated_total",
				Help: "Accounts updated by ledger maintenance jobs",
			},
			[]string{"job"},
		),
	}
}

// Middleware records request count and latency per matched route.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		m.HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		m.HTTPRequestDuration.WithLabelValues(c.Request.Method, path, status).Observe(time.Since(start).Seconds())
	}
}
