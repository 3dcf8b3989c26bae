package grid

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	CommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gridbot_commands_total",
		Help: "Operator commands by command and outcome",
	}, []string{"command", "status"})

	CommandDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gridbot_command_duration_seconds",
		Help:    "Operator command latency including exchange calls",
		Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
	}, []string{"command"})

	RecoveryPairsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gridbot_recovery_pairs_total",
		Help: "Pending pairs recorded to re-place a sell that could not be restored",
	})
)
