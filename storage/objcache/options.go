package objcache

import (
	"github.com/wuchunfu/nessie/metric"
)

// Option configures cache behavior using the functional options pattern.
type Option func(*cacheOptions)

// cacheOptions holds internal configuration for cache instances. Stats
// are always collected; Prometheus export is opt-in via WithMetrics.
type cacheOptions struct {
	metricsReg    *metric.MetricsRegistry
	metricsPrefix string
	evictCallback EvictCallback
}

// WithMetrics enables Prometheus metrics export for cache statistics.
// The prefix becomes the component label. If registry is nil or prefix
// is empty, the option is ignored.
func WithMetrics(registry *metric.MetricsRegistry, prefix string) Option {
	return func(opts *cacheOptions) {
		if registry != nil && prefix != "" {
			opts.metricsReg = registry
			opts.metricsPrefix = prefix
		}
	}
}

// WithEvictionCallback sets a callback invoked with the id and value of
// every evicted object. Negative markers do not trigger it.
func WithEvictionCallback(callback EvictCallback) Option {
	return func(opts *cacheOptions) {
		opts.evictCallback = callback
	}
}

func applyOptions(options ...Option) *cacheOptions {
	opts := &cacheOptions{}
	for _, opt := range options {
		if opt != nil {
			opt(opts)
		}
	}
	return opts
}
