package circuitbreaker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	// Enabled is 1 while new pairs may be opened.
	Enabled = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gridbot_circuit_breaker_enabled",
		Help: "Whether the circuit breaker allows opening pairs (1=enabled, 0=disabled)",
	})

	QuoteBalance = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gridbot_circuit_breaker_quote_balance",
		Help: "Last checked free quote balance",
	})

	DisableThreshold = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gridbot_circuit_breaker_disable_threshold",
		Help: "Quote balance below which pair creation is disabled",
	})

	EnableThreshold = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gridbot_circuit_breaker_enable_threshold",
		Help: "Quote balance at which pair creation is re-enabled",
	})

	AvgTradeSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gridbot_circuit_breaker_avg_trade_size",
		Help: "Rolling average invested amount of recent pairs",
	})

	StateChanges = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gridbot_circuit_breaker_state_changes_total",
		Help: "Total number of circuit breaker state changes",
	})

	CheckDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "gridbot_circuit_breaker_check_duration_seconds",
		Help:    "Time taken to check the quote balance",
		Buckets: prometheus.DefBuckets,
	})
)
