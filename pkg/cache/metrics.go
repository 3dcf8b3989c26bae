package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	HitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gridbot_cache_hits_total",
		Help: "Total number of cache hits",
	}, []string{"kind"})

	MissesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gridbot_cache_misses_total",
		Help: "Total number of cache misses",
	}, []string{"kind"})

	RejectedSetsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gridbot_cache_rejected_sets_total",
		Help: "Total number of values the cache refused to admit",
	}, []string{"kind"})
)
