// Package nessie is the storage core of a versioned metadata catalog:
// a content-addressed object store with a transparent caching layer and
// a content serializer that maps typed catalog records onto immutable
// stored objects.
//
// # Architecture
//
// The store is layered: callers talk to a single Persist contract and
// cannot tell a cached store from a direct backend connection.
//
//	┌─────────────────────────────────────┐
//	│       storage/cached facade         │  read-through cache,
//	│   (negative lookups, invalidation)  │  self-healing on errors
//	└─────────────────────────────────────┘
//	           ↓ delegates misses
//	┌─────────────────────────────────────┐
//	│       storage.Persist backends      │  inmem (tests, embedding)
//	│        (inmem, natskv)              │  natskv (JetStream KV)
//	└─────────────────────────────────────┘
//
// The content package sits beside the stores: it turns table, view,
// delta-table and namespace records into stored bytes and back, with
// lazy global-state indirection for legacy records.
//
// # Packages
//
// Storage:
//   - storage: object model, Persist contract, wire codec
//   - storage/objcache: bounded LRU object cache with negative entries
//   - storage/cached: the caching facade over any Persist
//   - storage/inmem: in-memory backend
//   - storage/natskv: NATS JetStream KV backend
//
// Content:
//   - content: content serializer and commit metadata codec
//
// Infrastructure:
//   - natsclient: NATS connection management and KV access
//   - config: configuration loading and validation
//   - metric: Prometheus metrics
//   - errors: structured error handling
//   - pkg/retry: retry policies
//   - testutil: test fixtures and data generators
//
// # Usage
//
// Opening a cached KV-backed store:
//
//	client, _ := natsclient.NewClient("nats://localhost:4222")
//	client.Connect(ctx)
//
//	store, _ := natskv.New(ctx, client, natskv.DefaultConfig())
//	facade, _ := cached.WrapWithConfig(store, objcache.DefaultConfig())
//
//	obj, err := facade.FetchObj(ctx, id)
//
// # Design principles
//
// The cache only ever holds values known to match the backing store at
// the time they were read, or nothing: correctness never depends on the
// cache, eviction only costs a backend call. Reference mutations are
// optimistically concurrent and live entirely in the backend. All
// stored layouts keep decoding old records indefinitely.
package nessie
