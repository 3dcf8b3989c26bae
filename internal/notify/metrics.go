package notify

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	// EventsTotal tracks delivered events by type and sink.
	EventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gridbot_notify_events_total",
			Help: "Total number of lifecycle events delivered",
		},
		[]string{"type", "sink"},
	)

	// EventErrorsTotal tracks failed deliveries by type.
	EventErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gridbot_notify_event_errors_total",
			Help: "Total number of lifecycle events that failed to deliver",
		},
		[]string{"type"},
	)
)
