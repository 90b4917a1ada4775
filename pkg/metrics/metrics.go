package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Admission pipeline outcomes, labeled by result (admitted, duplicate,
// out_of_window, out_of_geofence, not_authorized, ...)
var AdmissionDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "guardpost",
	Subsystem: "admission",
	Name:      "decisions_total",
	Help:      "Check-in admission decisions by outcome",
}, []string{"outcome"})

// AdmissionDuration observes how long the admission pipeline takes
var AdmissionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "guardpost",
	Subsystem: "admission",
	Name:      "duration_seconds",
	Help:      "Admission pipeline latency",
	Buckets:   prometheus.DefBuckets,
})

// HTTPRequests counts requests by method, route template and status class
var HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "guardpost",
	Subsystem: "http",
	Name:      "requests_total",
	Help:      "HTTP requests by method, route and status",
}, []string{"method", "route", "status"})

// HTTPRequestDuration observes per-route request latency
var HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "guardpost",
	Subsystem: "http",
	Name:      "request_duration_seconds",
	Help:      "HTTP request latency by route",
	Buckets:   prometheus.DefBuckets,
}, []string{"method", "route"})

// BusConnections tracks currently connected bus clients
var BusConnections = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "guardpost",
	Subsystem: "bus",
	Name:      "connections",
	Help:      "Currently connected real-time clients",
})

// BusMessagesPublished counts messages fanned out per room kind
var BusMessagesPublished = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "guardpost",
	Subsystem: "bus",
	Name:      "messages_published_total",
	Help:      "Messages published to rooms by message type",
}, []string{"type"})

// BusMessagesDropped counts messages dropped because a client fell behind
var BusMessagesDropped = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "guardpost",
	Subsystem: "bus",
	Name:      "messages_dropped_total",
	Help:      "Messages dropped due to full client send buffers",
})

// TrackingAlertsRaised counts alerts created by the tracking monitor
var TrackingAlertsRaised = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "guardpost",
	Subsystem: "tracking",
	Name:      "alerts_raised_total",
	Help:      "Tracking alerts raised by alert type",
}, []string{"alert_type"})

// TrackingSamplesIngested counts accepted position samples
var TrackingSamplesIngested = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "guardpost",
	Subsystem: "tracking",
	Name:      "samples_ingested_total",
	Help:      "Position samples ingested",
})
