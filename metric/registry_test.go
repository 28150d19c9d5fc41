package metric

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/torocatala/dino/errors"
)

func TestNewMetricsRegistry(t *testing.T) {
	registry := NewMetricsRegistry()
	require.NotNil(t, registry)
	require.NotNil(t, registry.PrometheusRegistry())
	require.NotNil(t, registry.CoreMetrics())
}

func TestRegisterCounter(t *testing.T) {
	registry := NewMetricsRegistry()

	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "test_counter_total",
		Help: "test counter",
	})

	err := registry.RegisterCounter("message", "test_counter", counter)
	require.NoError(t, err)

	// Same key again is rejected before hitting prometheus.
	err = registry.RegisterCounter("message", "test_counter", counter)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestRegisterGaugeAndHistogram(t *testing.T) {
	registry := NewMetricsRegistry()

	gauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "test_gauge",
		Help: "test gauge",
	})
	require.NoError(t, registry.RegisterGauge("message", "test_gauge", gauge))

	histogram := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name: "test_histogram",
		Help: "test histogram",
	})
	require.NoError(t, registry.RegisterHistogram("message", "test_histogram", histogram))
}

func TestUnregister(t *testing.T) {
	registry := NewMetricsRegistry()

	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "test_unregister_total",
		Help: "test counter",
	})
	require.NoError(t, registry.RegisterCounter("message", "test_counter", counter))

	assert.True(t, registry.Unregister("message", "test_counter"))
	assert.False(t, registry.Unregister("message", "test_counter"))

	// Key is free again after unregister.
	require.NoError(t, registry.RegisterCounter("message", "test_counter", counter))
}

func TestCoreMetricsRecording(t *testing.T) {
	metrics := NewMetrics()

	metrics.RecordEventReceived("message")
	metrics.RecordEventReceived("message")
	metrics.RecordEventProcessed("message", "200")
	metrics.RecordError("message", "error")

	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.EventsReceived.WithLabelValues("message")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.EventsProcessed.WithLabelValues("message", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ErrorsTotal.WithLabelValues("message", "error")))

	metrics.RecordSessionOpened()
	metrics.RecordSessionOpened()
	metrics.RecordSessionClosed()
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.SessionsActive))

	metrics.RecordNATSStatus(true)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.NATSConnected))
	metrics.RecordNATSStatus(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.NATSConnected))
}
