package telemetry

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// LocationRequests counts one-shot acquisitions by source and outcome
	LocationRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "geoview",
			Name:      "location_requests_total",
			Help:      "Total number of one-shot location requests",
		},
		[]string{"source", "outcome"},
	)

	// LocationLatency tracks how long a fix took to arrive
	LocationLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "geoview",
			Name:      "location_request_seconds",
			Help:      "Time from request to fix or failure",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"source"},
	)

	// ViewUpdates counts accepted recenters by trigger
	ViewUpdates = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "geoview",
			Name:      "view_updates_total",
			Help:      "Total number of view recenters",
		},
		[]string{"trigger"},
	)

	// MarkersPlaced counts markers handed to the presenter
	MarkersPlaced = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "geoview",
			Name:      "markers_placed_total",
			Help:      "Total number of markers sent to the map engine",
		},
		[]string{"kind"},
	)

	// GeocodeQueries counts search queries by outcome
	GeocodeQueries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "geoview",
			Name:      "geocode_queries_total",
			Help:      "Total number of geocoding queries",
		},
		[]string{"outcome"},
	)

	// ActiveSessions is the number of live map components
	ActiveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "geoview",
			Name:      "active_sessions",
			Help:      "Number of live map sessions",
		},
	)

	// HistoryDropped counts fix records lost to a full history queue
	HistoryDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "geoview",
			Name:      "history_dropped_total",
			Help:      "Fix records dropped because the history queue was full",
		},
	)

	once sync.Once
)

// InitMetrics registers all metrics with the global Prometheus registry.
// Safe to call more than once.
func InitMetrics() {
	once.Do(func() {
		prometheus.DefaultRegisterer.Register(LocationRequests)
		prometheus.DefaultRegisterer.Register(LocationLatency)
		prometheus.DefaultRegisterer.Register(ViewUpdates)
		prometheus.DefaultRegisterer.Register(MarkersPlaced)
		prometheus.DefaultRegisterer.Register(GeocodeQueries)
		prometheus.DefaultRegisterer.Register(ActiveSessions)
		prometheus.DefaultRegisterer.Register(HistoryDropped)
	})
}

// ObserveAcquisition records one finished location request.
func ObserveAcquisition(source, outcome string, elapsed time.Duration) {
	LocationRequests.WithLabelValues(source, outcome).Inc()
	LocationLatency.WithLabelValues(source).Observe(elapsed.Seconds())
}
