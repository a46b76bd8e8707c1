// Package cached implements the caching store facade.
//
// CachingPersist exposes the exact storage.Persist contract of the
// backing store it wraps while keeping the in-process object cache
// coherent with it. Callers cannot distinguish the facade from a direct
// backing-store connection except by latency under repeated access.
package cached
