// Package objcache implements the bounded in-process object cache used
// by the caching store facade.
//
// The cache is keyed by object id and holds either a cached object or a
// negative marker recording that the id is known to be absent from the
// backing store. Negative markers expire after a configurable TTL so a
// later out-of-band store of the same id is picked up eventually even
// without an explicit invalidation.
//
// Eviction is LRU over a single bounded list covering positive and
// negative entries alike. Statistics are always collected; Prometheus
// export and an eviction callback are opt-in via functional options.
package objcache
