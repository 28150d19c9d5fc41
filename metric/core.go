package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains all platform-level metrics (not handler-specific)
type Metrics struct {
	// Event metrics
	EventsReceived     *prometheus.CounterVec
	EventsProcessed    *prometheus.CounterVec
	EventsPublished    *prometheus.CounterVec
	ProcessingDuration *prometheus.HistogramVec
	ErrorsTotal        *prometheus.CounterVec

	// Session metrics
	SessionsActive prometheus.Gauge

	// NATS metrics
	NATSConnected  prometheus.Gauge
	NATSReconnects prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all platform metrics
func NewMetrics() *Metrics {
	return &Metrics{
		EventsReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "dino",
				Subsystem: "events",
				Name:      "received_total",
				Help:      "Total number of events received",
			},
			[]string{"verb"},
		),

		EventsProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "dino",
				Subsystem: "events",
				Name:      "processed_total",
				Help:      "Total number of events processed",
			},
			[]string{"verb", "status"},
		),

		EventsPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "dino",
				Subsystem: "events",
				Name:      "published_total",
				Help:      "Total number of events published",
			},
			[]string{"subject"},
		),

		ProcessingDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "dino",
				Subsystem: "processing",
				Name:      "duration_seconds",
				Help:      "Event processing duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"verb"},
		),

		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "dino",
				Subsystem: "errors",
				Name:      "total",
				Help:      "Total number of errors",
			},
			[]string{"verb", "type"},
		),

		SessionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "dino",
				Subsystem: "sessions",
				Name:      "active",
				Help:      "Number of connected sessions",
			},
		),

		NATSConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "dino",
				Subsystem: "nats",
				Name:      "connected",
				Help:      "NATS connection status (0=disconnected, 1=connected)",
			},
		),

		NATSReconnects: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "dino",
				Subsystem: "nats",
				Name:      "reconnects_total",
				Help:      "Total number of NATS reconnections",
			},
		),
	}
}

// RecordEventReceived increments received event counter
func (c *Metrics) RecordEventReceived(verb string) {
	c.EventsReceived.WithLabelValues(verb).Inc()
}

// RecordEventProcessed increments processed event counter
func (c *Metrics) RecordEventProcessed(verb, status string) {
	c.EventsProcessed.WithLabelValues(verb, status).Inc()
}

// RecordEventPublished increments published event counter
func (c *Metrics) RecordEventPublished(subject string) {
	c.EventsPublished.WithLabelValues(subject).Inc()
}

// RecordProcessingDuration records processing time
func (c *Metrics) RecordProcessingDuration(verb string, duration time.Duration) {
	c.ProcessingDuration.WithLabelValues(verb).Observe(duration.Seconds())
}

// RecordError increments error counter
func (c *Metrics) RecordError(verb, errorType string) {
	c.ErrorsTotal.WithLabelValues(verb, errorType).Inc()
}

// RecordSessionOpened increments active session gauge
func (c *Metrics) RecordSessionOpened() {
	c.SessionsActive.Inc()
}

// RecordSessionClosed decrements active session gauge
func (c *Metrics) RecordSessionClosed() {
	c.SessionsActive.Dec()
}

// RecordNATSStatus updates NATS connection status
func (c *Metrics) RecordNATSStatus(connected bool) {
	value := 0.0
	if connected {
		value = 1.0
	}
	c.NATSConnected.Set(value)
}

// RecordNATSReconnect increments reconnection counter
func (c *Metrics) RecordNATSReconnect() {
	c.NATSReconnects.Inc()
}
