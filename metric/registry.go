package metric

import (
	stderrors "errors"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/torocatala/dino/errors"
)

// MetricsRegistrar defines the interface for registering handler-specific metrics
type MetricsRegistrar interface {
	RegisterCounter(handlerName, metricName string, counter prometheus.Counter) error
	RegisterGauge(handlerName, metricName string, gauge prometheus.Gauge) error
	RegisterHistogram(handlerName, metricName string, histogram prometheus.Histogram) error
	RegisterCounterVec(handlerName, metricName string, counterVec *prometheus.CounterVec) error
	RegisterHistogramVec(handlerName, metricName string, histogramVec *prometheus.HistogramVec) error
	Unregister(handlerName, metricName string) bool
}

// MetricsRegistry manages the registration and lifecycle of metrics
type MetricsRegistry struct {
	prometheusRegistry *prometheus.Registry
	Metrics            *Metrics
	registeredMetrics  map[string]prometheus.Collector
	mu                 sync.RWMutex
}

// NewMetricsRegistry creates a new metrics registry with core platform metrics
func NewMetricsRegistry() *MetricsRegistry {
	prometheusRegistry := prometheus.NewRegistry()

	registry := &MetricsRegistry{
		prometheusRegistry: prometheusRegistry,
		registeredMetrics:  make(map[string]prometheus.Collector),
	}

	registry.Metrics = NewMetrics()
	registry.registerMetrics()

	// Add Go runtime metrics
	registry.prometheusRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return registry
}

// PrometheusRegistry returns the underlying Prometheus registry
func (r *MetricsRegistry) PrometheusRegistry() *prometheus.Registry {
	return r.prometheusRegistry
}

// CoreMetrics returns the core platform metrics
func (r *MetricsRegistry) CoreMetrics() *Metrics {
	return r.Metrics
}

func (r *MetricsRegistry) register(handlerName, metricName, method string, collector prometheus.Collector) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := fmt.Sprintf("%s.%s", handlerName, metricName)

	if _, exists := r.registeredMetrics[key]; exists {
		return errors.WrapInvalid(
			fmt.Errorf("metric %s already registered for handler %s", metricName, handlerName),
			"MetricsRegistry", method, "duplicate metric registration")
	}

	if err := r.prometheusRegistry.Register(collector); err != nil {
		var alreadyRegErr prometheus.AlreadyRegisteredError
		if stderrors.As(err, &alreadyRegErr) {
			return errors.WrapInvalid(err, "MetricsRegistry", method,
				fmt.Sprintf("prometheus conflict for metric %s", metricName))
		}
		return errors.WrapFatal(err, "MetricsRegistry", method,
			"failed to register collector with prometheus")
	}

	r.registeredMetrics[key] = collector
	return nil
}

// RegisterCounter registers a counter metric for a handler
func (r *MetricsRegistry) RegisterCounter(handlerName, metricName string, counter prometheus.Counter) error {
	return r.register(handlerName, metricName, "RegisterCounter", counter)
}

// RegisterGauge registers a gauge metric for a handler
func (r *MetricsRegistry) RegisterGauge(handlerName, metricName string, gauge prometheus.Gauge) error {
	return r.register(handlerName, metricName, "RegisterGauge", gauge)
}

// RegisterHistogram registers a histogram metric for a handler
func (r *MetricsRegistry) RegisterHistogram(handlerName, metricName string, histogram prometheus.Histogram) error {
	return r.register(handlerName, metricName, "RegisterHistogram", histogram)
}

// RegisterCounterVec registers a counter vector metric for a handler
func (r *MetricsRegistry) RegisterCounterVec(handlerName, metricName string, counterVec *prometheus.CounterVec) error {
	return r.register(handlerName, metricName, "RegisterCounterVec", counterVec)
}

// RegisterHistogramVec registers a histogram vector metric for a handler
func (r *MetricsRegistry) RegisterHistogramVec(
	handlerName, metricName string, histogramVec *prometheus.HistogramVec) error {
	return r.register(handlerName, metricName, "RegisterHistogramVec", histogramVec)
}

// Unregister removes a metric from the registry
func (r *MetricsRegistry) Unregister(handlerName, metricName string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := fmt.Sprintf("%s.%s", handlerName, metricName)

	collector, exists := r.registeredMetrics[key]
	if !exists {
		return false
	}

	success := r.prometheusRegistry.Unregister(collector)
	if success {
		delete(r.registeredMetrics, key)
	}

	return success
}

func (r *MetricsRegistry) registerMetrics() {
	r.prometheusRegistry.MustRegister(
		r.Metrics.EventsReceived,
		r.Metrics.EventsProcessed,
		r.Metrics.EventsPublished,
		r.Metrics.ProcessingDuration,
		r.Metrics.ErrorsTotal,
		r.Metrics.SessionsActive,
		r.Metrics.NATSConnected,
		r.Metrics.NATSReconnects,
	)
}
