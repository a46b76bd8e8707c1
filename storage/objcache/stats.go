package objcache

import (
	"sync"
	"sync/atomic"
	"time"
)

// Statistics tracks cache performance counters. All counters are safe
// for concurrent updates.
type Statistics struct {
	hits         int64
	negativeHits int64
	misses       int64
	puts         int64
	removes      int64
	evictions    int64

	mu          sync.RWMutex
	startTime   time.Time
	currentSize int64
	maxSize     int64
}

// NewStatistics creates a new statistics tracker.
func NewStatistics() *Statistics {
	return &Statistics{
		startTime: time.Now(),
	}
}

// Hit records a cache hit.
func (s *Statistics) Hit() {
	atomic.AddInt64(&s.hits, 1)
}

// NegativeHit records a lookup answered by a negative marker.
func (s *Statistics) NegativeHit() {
	atomic.AddInt64(&s.negativeHits, 1)
}

// Miss records a cache miss.
func (s *Statistics) Miss() {
	atomic.AddInt64(&s.misses, 1)
}

// Put records a put operation.
func (s *Statistics) Put() {
	atomic.AddInt64(&s.puts, 1)
}

// Remove records a remove operation.
func (s *Statistics) Remove() {
	atomic.AddInt64(&s.removes, 1)
}

// Eviction records a size-driven eviction.
func (s *Statistics) Eviction() {
	atomic.AddInt64(&s.evictions, 1)
}

// UpdateSize updates the current cache size.
func (s *Statistics) UpdateSize(size int64) {
	s.mu.Lock()
	s.currentSize = size
	if size > s.maxSize {
		s.maxSize = size
	}
	s.mu.Unlock()
}

// Hits returns the total number of cache hits.
func (s *Statistics) Hits() int64 {
	return atomic.LoadInt64(&s.hits)
}

// NegativeHits returns the total number of negative-marker hits.
func (s *Statistics) NegativeHits() int64 {
	return atomic.LoadInt64(&s.negativeHits)
}

// Misses returns the total number of cache misses.
func (s *Statistics) Misses() int64 {
	return atomic.LoadInt64(&s.misses)
}

// Puts returns the total number of put operations.
func (s *Statistics) Puts() int64 {
	return atomic.LoadInt64(&s.puts)
}

// Removes returns the total number of remove operations.
func (s *Statistics) Removes() int64 {
	return atomic.LoadInt64(&s.removes)
}

// Evictions returns the total number of evictions.
func (s *Statistics) Evictions() int64 {
	return atomic.LoadInt64(&s.evictions)
}

// CurrentSize returns the current number of entries in the cache.
func (s *Statistics) CurrentSize() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentSize
}

// MaxSize returns the largest number of entries the cache has held.
func (s *Statistics) MaxSize() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.maxSize
}

// HitRatio returns the hit ratio over all lookups (0.0 to 1.0).
// Negative hits count as hits; they saved a backend call.
func (s *Statistics) HitRatio() float64 {
	hits := s.Hits() + s.NegativeHits()
	total := hits + s.Misses()

	if total == 0 {
		return 0.0
	}
	return float64(hits) / float64(total)
}

// Uptime returns how long the cache has been running.
func (s *Statistics) Uptime() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return time.Since(s.startTime)
}

// Reset resets all statistics to zero.
func (s *Statistics) Reset() {
	atomic.StoreInt64(&s.hits, 0)
	atomic.StoreInt64(&s.negativeHits, 0)
	atomic.StoreInt64(&s.misses, 0)
	atomic.StoreInt64(&s.puts, 0)
	atomic.StoreInt64(&s.removes, 0)
	atomic.StoreInt64(&s.evictions, 0)

	s.mu.Lock()
	s.startTime = time.Now()
	s.currentSize = 0
	s.maxSize = 0
	s.mu.Unlock()
}

// StatsSummary is a point-in-time snapshot of all statistics.
type StatsSummary struct {
	Hits         int64         `json:"hits"`
	NegativeHits int64         `json:"negative_hits"`
	Misses       int64         `json:"misses"`
	Puts         int64         `json:"puts"`
	Removes      int64         `json:"removes"`
	Evictions    int64         `json:"evictions"`
	CurrentSize  int64         `json:"current_size"`
	MaxSize      int64         `json:"max_size"`
	HitRatio     float64       `json:"hit_ratio"`
	Uptime       time.Duration `json:"uptime"`
}

// Summary returns a snapshot of all statistics.
func (s *Statistics) Summary() StatsSummary {
	return StatsSummary{
		Hits:         s.Hits(),
		NegativeHits: s.NegativeHits(),
		Misses:       s.Misses(),
		Puts:         s.Puts(),
		Removes:      s.Removes(),
		Evictions:    s.Evictions(),
		CurrentSize:  s.CurrentSize(),
		MaxSize:      s.MaxSize(),
		HitRatio:     s.HitRatio(),
		Uptime:       s.Uptime(),
	}
}
