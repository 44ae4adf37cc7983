package metric

import (
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterCounter(t *testing.T) {
	registry := NewRegistry()

	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "test_operations_total",
		Help: "Test counter",
	})

	require.NoError(t, registry.RegisterCounter("gateway", "test_operations_total", counter))

	// Duplicate registration under the same key fails
	err := registry.RegisterCounter("gateway", "test_operations_total", counter)
	assert.Error(t, err)
}

func TestUnregister(t *testing.T) {
	registry := NewRegistry()

	gauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "test_queue_depth",
		Help: "Test gauge",
	})

	require.NoError(t, registry.RegisterGauge("pool", "test_queue_depth", gauge))
	assert.True(t, registry.Unregister("pool", "test_queue_depth"))
	assert.False(t, registry.Unregister("pool", "test_queue_depth"))

	// Re-registration after unregister succeeds
	require.NoError(t, registry.RegisterGauge("pool", "test_queue_depth", gauge))
}

func TestHandlerServesMetrics(t *testing.T) {
	registry := NewRegistry()

	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "semindex_test_total",
		Help: "Test counter",
	})
	require.NoError(t, registry.RegisterCounter("gateway", "semindex_test_total", counter))
	counter.Inc()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	registry.Handler().ServeHTTP(rec, req)

	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "semindex_test_total 1")
}
