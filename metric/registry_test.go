package metric

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gatherNames(t *testing.T, registry *MetricsRegistry) map[string]bool {
	t.Helper()

	metricFamilies, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(metricFamilies))
	for _, mf := range metricFamilies {
		names[mf.GetName()] = true
	}
	return names
}

func TestNewMetricsRegistry(t *testing.T) {
	registry := NewMetricsRegistry()

	assert.NotNil(t, registry)
	assert.NotNil(t, registry.PrometheusRegistry())
	assert.NotNil(t, registry.CoreMetrics())
}

func TestMetricsRegistry_CoreMetricsRegistered(t *testing.T) {
	registry := NewMetricsRegistry()

	registry.Metrics.RecordStorageOp("inmem", "fetch", "ok")
	registry.Metrics.RecordReferenceOp("inmem", "add", "ok")
	registry.Metrics.RecordNATSStatus(true)

	names := gatherNames(t, registry)
	assert.True(t, names["nessie_storage_ops_total"])
	assert.True(t, names["nessie_references_ops_total"])
	assert.True(t, names["nessie_nats_connected"])
}

func TestMetricsRegistry_RegisterCounter(t *testing.T) {
	registry := NewMetricsRegistry()

	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "test_counter",
		Help: "A test counter",
	})

	err := registry.RegisterCounter("test-store", "test_counter", counter)
	require.NoError(t, err)

	counter.Inc()

	names := gatherNames(t, registry)
	assert.True(t, names["test_counter"], "counter should be registered in Prometheus registry")
}

func TestMetricsRegistry_RegisterDuplicate(t *testing.T) {
	registry := NewMetricsRegistry()

	gauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "test_gauge",
		Help: "A test gauge",
	})

	require.NoError(t, registry.RegisterGauge("test-store", "test_gauge", gauge))

	err := registry.RegisterGauge("test-store", "test_gauge", gauge)
	assert.Error(t, err, "duplicate registration must be rejected")
}

func TestMetricsRegistry_RegisterVecs(t *testing.T) {
	registry := NewMetricsRegistry()

	counterVec := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "test_counter_vec",
		Help: "A test counter vector",
	}, []string{"bucket"})
	require.NoError(t, registry.RegisterCounterVec("test-store", "test_counter_vec", counterVec))
	counterVec.WithLabelValues("objs").Inc()

	gaugeVec := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "test_gauge_vec",
		Help: "A test gauge vector",
	}, []string{"bucket"})
	require.NoError(t, registry.RegisterGaugeVec("test-store", "test_gauge_vec", gaugeVec))
	gaugeVec.WithLabelValues("refs").Set(3)

	histogramVec := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name: "test_histogram_vec",
		Help: "A test histogram vector",
	}, []string{"op"})
	require.NoError(t, registry.RegisterHistogramVec("test-store", "test_histogram_vec", histogramVec))
	histogramVec.WithLabelValues("fetch").Observe(0.01)

	histogram := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name: "test_histogram",
		Help: "A test histogram",
	})
	require.NoError(t, registry.RegisterHistogram("test-store", "test_histogram", histogram))

	names := gatherNames(t, registry)
	for _, name := range []string{"test_counter_vec", "test_gauge_vec", "test_histogram_vec", "test_histogram"} {
		assert.True(t, names[name], "%s should be registered", name)
	}
}

func TestMetricsRegistry_Unregister(t *testing.T) {
	registry := NewMetricsRegistry()

	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "removable_counter",
		Help: "A counter that gets removed",
	})
	require.NoError(t, registry.RegisterCounter("test-store", "removable_counter", counter))

	assert.True(t, registry.Unregister("test-store", "removable_counter"))
	assert.False(t, registry.Unregister("test-store", "removable_counter"),
		"second unregister must report missing metric")

	// Re-registration succeeds after removal.
	require.NoError(t, registry.RegisterCounter("test-store", "removable_counter", counter))
}

func TestMetricsRegistry_ConcurrentRegistration(t *testing.T) {
	registry := NewMetricsRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			counter := prometheus.NewCounter(prometheus.CounterOpts{
				Name: fmt.Sprintf("concurrent_counter_%d", n),
				Help: "A concurrently registered counter",
			})
			assert.NoError(t, registry.RegisterCounter("test-store",
				fmt.Sprintf("concurrent_counter_%d", n), counter))
		}(i)
	}
	wg.Wait()

	names := gatherNames(t, registry)
	for i := 0; i < 20; i++ {
		assert.True(t, names[fmt.Sprintf("concurrent_counter_%d", i)])
	}
}

func TestMetrics_RecordHelpers(t *testing.T) {
	registry := NewMetricsRegistry()
	m := registry.CoreMetrics()

	m.RecordStorageOp("natskv", "store", "ok")
	m.RecordStorageOpDuration("natskv", "store", 25*time.Millisecond)
	m.RecordStorageError("natskv", "transient")
	m.RecordObjectBytes("natskv", "commit", 2048)
	m.RecordReferenceOp("natskv", "update", "conflict")
	m.RecordNATSRTT(3 * time.Millisecond)
	m.RecordNATSReconnect()
	m.RecordNATSStatus(false)

	names := gatherNames(t, registry)
	assert.True(t, names["nessie_storage_op_duration_seconds"])
	assert.True(t, names["nessie_storage_errors_total"])
	assert.True(t, names["nessie_storage_object_bytes"])
	assert.True(t, names["nessie_nats_reconnects_total"])
}
