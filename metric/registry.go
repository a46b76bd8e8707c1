package metric

import (
	stderrors "errors"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/wuchunfu/nessie/errors"
)

// MetricsRegistrar defines the interface for registering store-specific metrics
type MetricsRegistrar interface {
	RegisterCounter(storeName, metricName string, counter prometheus.Counter) error
	RegisterGauge(storeName, metricName string, gauge prometheus.Gauge) error
	RegisterHistogram(storeName, metricName string, histogram prometheus.Histogram) error
	RegisterCounterVec(storeName, metricName string, counterVec *prometheus.CounterVec) error
	RegisterGaugeVec(storeName, metricName string, gaugeVec *prometheus.GaugeVec) error
	RegisterHistogramVec(storeName, metricName string, histogramVec *prometheus.HistogramVec) error
	Unregister(storeName, metricName string) bool
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
	registry.registerCoreMetrics()

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

// register adds a collector under "store.metric", rejecting duplicates both
// at the registry level and at the Prometheus level.
func (r *MetricsRegistry) register(method, storeName, metricName string, collector prometheus.Collector) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := fmt.Sprintf("%s.%s", storeName, metricName)

	if _, exists := r.registeredMetrics[key]; exists {
		return errors.WrapInvalid(
			fmt.Errorf("metric %s already registered for store %s", metricName, storeName),
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

// RegisterCounter registers a counter metric for a store
func (r *MetricsRegistry) RegisterCounter(storeName, metricName string, counter prometheus.Counter) error {
	return r.register("RegisterCounter", storeName, metricName, counter)
}

// RegisterGauge registers a gauge metric for a store
func (r *MetricsRegistry) RegisterGauge(storeName, metricName string, gauge prometheus.Gauge) error {
	return r.register("RegisterGauge", storeName, metricName, gauge)
}

// RegisterHistogram registers a histogram metric for a store
func (r *MetricsRegistry) RegisterHistogram(storeName, metricName string, histogram prometheus.Histogram) error {
	return r.register("RegisterHistogram", storeName, metricName, histogram)
}

// RegisterCounterVec registers a counter vector metric for a store
func (r *MetricsRegistry) RegisterCounterVec(storeName, metricName string, counterVec *prometheus.CounterVec) error {
	return r.register("RegisterCounterVec", storeName, metricName, counterVec)
}

// RegisterGaugeVec registers a gauge vector metric for a store
func (r *MetricsRegistry) RegisterGaugeVec(storeName, metricName string, gaugeVec *prometheus.GaugeVec) error {
	return r.register("RegisterGaugeVec", storeName, metricName, gaugeVec)
}

// RegisterHistogramVec registers a histogram vector metric for a store
func (r *MetricsRegistry) RegisterHistogramVec(
	storeName, metricName string, histogramVec *prometheus.HistogramVec) error {
	return r.register("RegisterHistogramVec", storeName, metricName, histogramVec)
}

// Unregister removes a metric from the registry
func (r *MetricsRegistry) Unregister(storeName, metricName string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := fmt.Sprintf("%s.%s", storeName, metricName)

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

func (r *MetricsRegistry) registerCoreMetrics() {
	r.prometheusRegistry.MustRegister(
		r.Metrics.StorageOps,
		r.Metrics.StorageOpDuration,
		r.Metrics.StorageErrors,
		r.Metrics.ObjectBytes,
		r.Metrics.ReferenceOps,
		r.Metrics.NATSConnected,
		r.Metrics.NATSRTT,
		r.Metrics.NATSReconnects,
	)
}
