package exchange

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	// RequestsTotal tracks exchange requests by operation and HTTP status.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gridbot_exchange_requests_total",
			Help: "Total number of exchange requests",
		},
		[]string{"op", "status"},
	)

	// RequestDuration tracks exchange request latency.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gridbot_exchange_request_duration_seconds",
			Help:    "Duration of exchange requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	// RetriesTotal tracks retries of idempotent requests.
	RetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gridbot_exchange_retries_total",
			Help: "Total number of retried exchange requests",
		},
		[]string{"op"},
	)

	// RateLimitedTotal tracks requests refused because of rate limiting.
	RateLimitedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gridbot_exchange_rate_limited_total",
			Help: "Total number of rate limited exchange requests",
		},
		[]string{"op"},
	)

	// ReauthTotal tracks re-authentication attempts.
	ReauthTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gridbot_exchange_reauth_total",
		Help: "Total number of exchange re-authentication attempts",
	})
)
