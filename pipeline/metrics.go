package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/torocatala/dino/metric"
)

// Metrics holds Prometheus metrics for the request pipeline
type Metrics struct {
	eventCount      *prometheus.CounterVec
	eventErrors     *prometheus.CounterVec
	eventExceptions *prometheus.CounterVec
	eventDuration   *prometheus.HistogramVec
}

// NewMetrics creates pipeline metrics registered through the MetricsRegistry.
// A nil registry yields nil, which disables recording.
func NewMetrics(registry *metric.MetricsRegistry) *Metrics {
	if registry == nil {
		return nil
	}

	m := &Metrics{}

	m.eventCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dino_pipeline_event_count_total",
			Help: "Total number of pipeline invocations",
		},
		[]string{"event"},
	)
	_ = registry.RegisterCounterVec("pipeline", "event_count_total", m.eventCount)

	m.eventErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dino_pipeline_event_error_total",
			Help: "Total number of pipeline invocations rejected with a non-OK status",
		},
		[]string{"event"},
	)
	_ = registry.RegisterCounterVec("pipeline", "event_error_total", m.eventErrors)

	m.eventExceptions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dino_pipeline_event_exception_total",
			Help: "Total number of pipeline invocations that panicked or failed to parse",
		},
		[]string{"event"},
	)
	_ = registry.RegisterCounterVec("pipeline", "event_exception_total", m.eventExceptions)

	m.eventDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dino_pipeline_event_duration_seconds",
			Help:    "Wall time of accepted pipeline invocations",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 2.0},
		},
		[]string{"event"},
	)
	_ = registry.RegisterHistogramVec("pipeline", "event_duration_seconds", m.eventDuration)

	return m
}

func (m *Metrics) recordCount(event string) {
	if m == nil {
		return
	}
	m.eventCount.WithLabelValues(event).Inc()
}

func (m *Metrics) recordError(event string) {
	if m == nil {
		return
	}
	m.eventErrors.WithLabelValues(event).Inc()
}

func (m *Metrics) recordException(event string) {
	if m == nil {
		return
	}
	m.eventExceptions.WithLabelValues(event).Inc()
}

func (m *Metrics) recordDuration(event string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.eventDuration.WithLabelValues(event).Observe(elapsed.Seconds())
}
