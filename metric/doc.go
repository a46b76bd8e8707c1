// Package metric provides Prometheus metrics registration and exposure
// for the storage layer. A single MetricsRegistry owns the Prometheus
// registry, carries the core platform metrics, and lets individual store
// implementations register their own collectors under a "store.metric"
// key without colliding.
package metric
