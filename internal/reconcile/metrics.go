package reconcile

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	// PassDuration tracks the duration of reconciliation passes.
	PassDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "gridbot_reconcile_pass_duration_seconds",
		Help:    "Duration of reconciliation passes",
		Buckets: prometheus.DefBuckets,
	})

	// PassErrorsTotal tracks passes aborted by a failed exchange read.
	PassErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gridbot_reconcile_pass_errors_total",
		Help: "Total number of failed reconciliation passes",
	})

	// PassSkippedTotal tracks passes skipped because one was already running.
	PassSkippedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gridbot_reconcile_pass_skipped_total",
		Help: "Total number of reconciliation passes skipped while another was in flight",
	})

	// PromotionsTotal tracks sells placed for filled buys.
	PromotionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gridbot_reconcile_promotions_total",
		Help: "Total number of pending pairs promoted to a sell order",
	})

	// PromotionFailuresTotal tracks failed sell placements.
	PromotionFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gridbot_reconcile_promotion_failures_total",
		Help: "Total number of failed sell placements during promotion",
	})

	// AmbiguitiesTotal tracks polls where a buy left the book without visible fills.
	AmbiguitiesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gridbot_reconcile_ambiguities_total",
		Help: "Total number of fill-ambiguity observations",
	})

	// PairsByState tracks pending pairs per reconciliation state.
	PairsByState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gridbot_reconcile_pairs",
			Help: "Number of pending pairs per reconciliation state",
		},
		[]string{"state"},
	)

	// OpenPositions tracks the number of open positions after the last pass.
	OpenPositions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gridbot_reconcile_open_positions",
		Help: "Number of open positions after the last pass",
	})
)
