package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains the platform-level metrics shared by every store
// implementation. Store- or cache-specific collectors are registered
// separately through the MetricsRegistrar interface.
type Metrics struct {
	// Storage metrics
	StorageOps        *prometheus.CounterVec
	StorageOpDuration *prometheus.HistogramVec
	StorageErrors     *prometheus.CounterVec
	ObjectBytes       *prometheus.HistogramVec

	// Reference metrics
	ReferenceOps *prometheus.CounterVec

	// NATS metrics
	NATSConnected  prometheus.Gauge
	NATSRTT        prometheus.Gauge
	NATSReconnects prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all platform metrics
func NewMetrics() *Metrics {
	return &Metrics{
		StorageOps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "nessie",
				Subsystem: "storage",
				Name:      "ops_total",
				Help:      "Total number of storage operations",
			},
			[]string{"store", "op", "status"},
		),

		StorageOpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "nessie",
				Subsystem: "storage",
				Name:      "op_duration_seconds",
				Help:      "Storage operation duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"store", "op"},
		),

		StorageErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "nessie",
				Subsystem: "storage",
				Name:      "errors_total",
				Help:      "Total number of storage errors",
			},
			[]string{"store", "type"},
		),

		ObjectBytes: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "nessie",
				Subsystem: "storage",
				Name:      "object_bytes",
				Help:      "Serialized object size in bytes",
				Buckets:   prometheus.ExponentialBuckets(256, 4, 8),
			},
			[]string{"store", "type"},
		),

		ReferenceOps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "nessie",
				Subsystem: "references",
				Name:      "ops_total",
				Help:      "Total number of reference operations",
			},
			[]string{"store", "op", "status"},
		),

		NATSConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "nessie",
				Subsystem: "nats",
				Name:      "connected",
				Help:      "NATS connection status (0=disconnected, 1=connected)",
			},
		),

		NATSRTT: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "nessie",
				Subsystem: "nats",
				Name:      "rtt_milliseconds",
				Help:      "NATS round-trip time in milliseconds",
			},
		),

		NATSReconnects: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "nessie",
				Subsystem: "nats",
				Name:      "reconnects_total",
				Help:      "Total number of NATS reconnections",
			},
		),
	}
}

// RecordStorageOp increments the storage operation counter
func (m *Metrics) RecordStorageOp(store, op, status string) {
	m.StorageOps.WithLabelValues(store, op, status).Inc()
}

// RecordStorageOpDuration records the duration of a storage operation
func (m *Metrics) RecordStorageOpDuration(store, op string, duration time.Duration) {
	m.StorageOpDuration.WithLabelValues(store, op).Observe(duration.Seconds())
}

// RecordStorageError increments the storage error counter
func (m *Metrics) RecordStorageError(store, errorType string) {
	m.StorageErrors.WithLabelValues(store, errorType).Inc()
}

// RecordObjectBytes records the serialized size of an object
func (m *Metrics) RecordObjectBytes(store, objType string, size int) {
	m.ObjectBytes.WithLabelValues(store, objType).Observe(float64(size))
}

// RecordReferenceOp increments the reference operation counter
func (m *Metrics) RecordReferenceOp(store, op, status string) {
	m.ReferenceOps.WithLabelValues(store, op, status).Inc()
}

// RecordNATSStatus updates NATS connection status
func (m *Metrics) RecordNATSStatus(connected bool) {
	value := 0.0
	if connected {
		value = 1.0
	}
	m.NATSConnected.Set(value)
}

// RecordNATSRTT updates NATS round-trip time
func (m *Metrics) RecordNATSRTT(rtt time.Duration) {
	m.NATSRTT.Set(float64(rtt.Milliseconds()))
}

// RecordNATSReconnect increments reconnection counter
func (m *Metrics) RecordNATSReconnect() {
	m.NATSReconnects.Inc()
}
