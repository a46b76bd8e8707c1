package objcache

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/wuchunfu/nessie/metric"
)

// cacheMetrics holds the Prometheus collectors mirroring Statistics.
type cacheMetrics struct {
	hits         prometheus.Counter
	negativeHits prometheus.Counter
	misses       prometheus.Counter
	puts         prometheus.Counter
	removes      prometheus.Counter
	evictions    prometheus.Counter
	size         prometheus.Gauge
}

// newCacheMetrics creates and registers cache metrics with the provided
// registry under the given component prefix.
func newCacheMetrics(registry *metric.MetricsRegistry, prefix string) (*cacheMetrics, error) {
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "nessie",
			Subsystem:   "objcache",
			Name:        name,
			ConstLabels: prometheus.Labels{"component": prefix},
			Help:        help,
		})
	}

	m := &cacheMetrics{
		hits:         counter("hits_total", "Total number of cache hits"),
		negativeHits: counter("negative_hits_total", "Total number of negative-marker hits"),
		misses:       counter("misses_total", "Total number of cache misses"),
		puts:         counter("puts_total", "Total number of cache put operations"),
		removes:      counter("removes_total", "Total number of cache remove operations"),
		evictions:    counter("evictions_total", "Total number of cache evictions"),
		size: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "nessie",
			Subsystem:   "objcache",
			Name:        "size",
			ConstLabels: prometheus.Labels{"component": prefix},
			Help:        "Current number of entries in the cache",
		}),
	}

	registrations := []struct {
		name      string
		collector prometheus.Counter
	}{
		{"objcache_hits", m.hits},
		{"objcache_negative_hits", m.negativeHits},
		{"objcache_misses", m.misses},
		{"objcache_puts", m.puts},
		{"objcache_removes", m.removes},
		{"objcache_evictions", m.evictions},
	}
	for _, reg := range registrations {
		if err := registry.RegisterCounter(prefix, reg.name, reg.collector); err != nil {
			return nil, err
		}
	}
	if err := registry.RegisterGauge(prefix, "objcache_size", m.size); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *cacheMetrics) recordHit()         { m.hits.Inc() }
func (m *cacheMetrics) recordNegativeHit() { m.negativeHits.Inc() }
func (m *cacheMetrics) recordMiss()        { m.misses.Inc() }
func (m *cacheMetrics) recordPut()         { m.puts.Inc() }
func (m *cacheMetrics) recordRemove()      { m.removes.Inc() }
func (m *cacheMetrics) recordEviction()    { m.evictions.Inc() }

func (m *cacheMetrics) updateSize(size int) {
	m.size.Set(float64(size))
}
