// Package metrics exposes Prometheus counters and histograms for the
// session protocol and map data service, scraped at GET /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ConnectionsActive tracks live WebSocket connections.
	ConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "nearmap_connections_active",
		Help: "Number of currently open WebSocket connections",
	})

	// EventsTotal counts request events dispatched, by event name
	// (spec.md §4.G).
	EventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nearmap_events_total",
		Help: "Total request events dispatched",
	}, []string{"event"})

	// EventDuration tracks handler latency by event name.
	EventDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "nearmap_event_duration_seconds",
		Help:    "Duration of request event handling in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"event"})

	// AcksTotal counts ack replies sent, by event name and status
	// (spec.md §7).
	AcksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nearmap_acks_total",
		Help: "Total ack replies sent",
	}, []string{"event", "status"})

	// PushesTotal counts server-push frames sent, by event name
	// (spec.md §4.G "Push events").
	PushesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nearmap_pushes_total",
		Help: "Total server-push frames sent",
	}, []string{"event"})

	// ReconcileDuration tracks the nightly reconciliation job's runtime
	// (spec.md §4.E).
	ReconcileDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "nearmap_reconcile_duration_seconds",
		Help:    "Duration of the nightly reconciliation pass in seconds",
		Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120},
	})
)

// ObserveEvent records a dispatched event handler invocation's duration.
func ObserveEvent(event string, start time.Time) {
	EventsTotal.WithLabelValues(event).Inc()
	EventDuration.WithLabelValues(event).Observe(time.Since(start).Seconds())
}

// ObserveAck records an ack reply's status.
func ObserveAck(event string, status int) {
	AcksTotal.WithLabelValues(event, statusLabel(status)).Inc()
}

func statusLabel(status int) string {
	switch {
	case status >= 200 && status < 300:
		return "ok"
	case status >= 400 && status < 500:
		return "client_error"
	default:
		return "server_error"
	}
}
