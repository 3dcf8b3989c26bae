package pending

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	// PendingPairs tracks the number of pairs waiting for their buy to fill.
	PendingPairs = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gridbot_pending_pairs",
		Help: "Number of pending grid pairs",
	})

	// StoreWriteDuration tracks durable write latency by operation.
	StoreWriteDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gridbot_pending_store_write_duration_seconds",
			Help:    "Duration of pending pair store writes",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	// StoreErrorsTotal tracks failed durable writes by operation.
	StoreErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gridbot_pending_store_errors_total",
			Help: "Total number of failed pending pair store writes",
		},
		[]string{"op"},
	)
)
