package objcache

import (
	"container/list"
	"sync"
	"time"

	"github.com/wuchunfu/nessie/errors"
	"github.com/wuchunfu/nessie/storage"
)

// State is the outcome of a cache lookup.
type State int

const (
	// StateMiss means the cache knows nothing about the id.
	StateMiss State = iota
	// StateHit means a cached object was returned.
	StateHit
	// StateNegative means the id is known to be absent from the backing
	// store.
	StateNegative
)

// String returns the lookup state name.
func (s State) String() string {
	switch s {
	case StateHit:
		return "hit"
	case StateNegative:
		return "negative"
	default:
		return "miss"
	}
}

// EvictCallback is called when a cached object leaves the cache. Negative
// entries do not trigger the callback.
type EvictCallback func(id storage.ObjId, obj storage.Obj)

// Cache holds a bounded working set of objects keyed by id, and can
// remember that an id is known to be absent. Loss of cache content is
// always safe; it only costs a backend call.
type Cache interface {
	// Get looks up an id. It never triggers a backend fetch.
	Get(id storage.ObjId) (storage.Obj, State)
	// Put inserts or replaces the cached object for obj's id, clearing
	// any negative marker.
	Put(obj storage.Obj)
	// PutNegative records that the id is known to be absent. The marker
	// expires after the configured negative TTL.
	PutNegative(id storage.ObjId)
	// Remove evicts any entry, positive or negative, for the id.
	Remove(id storage.ObjId)
	// Clear evicts everything.
	Clear()
	// Size returns the current number of entries, negatives included.
	Size() int
	// Stats returns the cache statistics. Never nil for a live cache.
	Stats() *Statistics
	// Close shuts the cache down.
	Close() error
}

// entry is one cache slot. Either obj is set, or negative is true and
// expires bounds the marker's lifetime.
type entry struct {
	id       storage.ObjId
	obj      storage.Obj
	negative bool
	expires  time.Time
}

// lruCache is the bounded LRU implementation of Cache. It is safe for
// concurrent use.
type lruCache struct {
	mu          sync.RWMutex
	maxSize     int
	negativeTTL time.Duration
	items       map[storage.ObjId]*list.Element
	order       *list.List
	stats       *Statistics
	metrics     *cacheMetrics
	evictFn     EvictCallback
}

// New creates a bounded LRU object cache.
func New(maxSize int, negativeTTL time.Duration, options ...Option) (Cache, error) {
	opts := applyOptions(options...)

	var metrics *cacheMetrics
	if opts.metricsReg != nil && opts.metricsPrefix != "" {
		var err error
		metrics, err = newCacheMetrics(opts.metricsReg, opts.metricsPrefix)
		if err != nil {
			return nil, errors.WrapTransient(err, "objcache", "New", "metrics registration")
		}
	}

	return &lruCache{
		maxSize:     maxSize,
		negativeTTL: negativeTTL,
		items:       make(map[storage.ObjId]*list.Element),
		order:       list.New(),
		stats:       NewStatistics(),
		metrics:     metrics,
		evictFn:     opts.evictCallback,
	}, nil
}

// Get retrieves an entry by id and marks it as recently used.
func (c *lruCache) Get(id storage.ObjId) (storage.Obj, State) {
	c.mu.Lock()
	defer c.mu.Unlock()

	element, exists := c.items[id]
	if !exists {
		c.recordMiss()
		return nil, StateMiss
	}

	e := element.Value.(*entry)
	if e.negative {
		if time.Now().After(e.expires) {
			// Expired markers read as misses and are dropped eagerly.
			c.removeElementLocked(element)
			c.recordMiss()
			c.updateSizeLocked()
			return nil, StateMiss
		}
		c.order.MoveToFront(element)
		c.stats.NegativeHit()
		if c.metrics != nil {
			c.metrics.recordNegativeHit()
		}
		return nil, StateNegative
	}

	c.order.MoveToFront(element)
	c.stats.Hit()
	if c.metrics != nil {
		c.metrics.recordHit()
	}
	return e.obj, StateHit
}

// Put inserts or replaces the cached object for obj's id. A negative
// marker for the same id is overwritten.
func (c *lruCache) Put(obj storage.Obj) {
	if obj == nil || obj.ID().IsZero() {
		return
	}
	c.put(&entry{id: obj.ID(), obj: obj})
}

// PutNegative records known absence of an id, overwriting any positive
// entry. A no-op when the negative TTL is zero.
func (c *lruCache) PutNegative(id storage.ObjId) {
	if id.IsZero() || c.negativeTTL <= 0 {
		return
	}
	c.put(&entry{id: id, negative: true, expires: time.Now().Add(c.negativeTTL)})
}

func (c *lruCache) put(e *entry) {
	var evictID storage.ObjId
	var evictObj storage.Obj

	c.mu.Lock()
	if element, exists := c.items[e.id]; exists {
		element.Value = e
		c.order.MoveToFront(element)
		c.recordPutLocked()
		c.mu.Unlock()
		return
	}

	element := c.order.PushFront(e)
	c.items[e.id] = element

	if len(c.items) > c.maxSize {
		evictID, evictObj = c.evictLRULocked()
	}

	c.recordPutLocked()
	c.updateSizeLocked()
	c.mu.Unlock()

	// Eviction callback runs outside the lock to prevent deadlock.
	if c.evictFn != nil && evictObj != nil {
		c.evictFn(evictID, evictObj)
	}
}

// Remove evicts any entry for the id.
func (c *lruCache) Remove(id storage.ObjId) {
	var evictID storage.ObjId
	var evictObj storage.Obj

	c.mu.Lock()
	element, exists := c.items[id]
	if !exists {
		c.mu.Unlock()
		return
	}

	e := element.Value.(*entry)
	if c.evictFn != nil && !e.negative {
		evictID, evictObj = e.id, e.obj
	}

	c.removeElementLocked(element)
	c.stats.Remove()
	if c.metrics != nil {
		c.metrics.recordRemove()
	}
	c.updateSizeLocked()
	c.mu.Unlock()

	if c.evictFn != nil && evictObj != nil {
		c.evictFn(evictID, evictObj)
	}
}

// Clear evicts every entry.
func (c *lruCache) Clear() {
	var evicted []*entry

	c.mu.Lock()
	if c.evictFn != nil {
		evicted = make([]*entry, 0, len(c.items))
		for element := c.order.Back(); element != nil; element = element.Prev() {
			e := element.Value.(*entry)
			if !e.negative {
				evicted = append(evicted, e)
			}
		}
	}

	c.items = make(map[storage.ObjId]*list.Element)
	c.order.Init()
	c.updateSizeLocked()
	c.mu.Unlock()

	if c.evictFn != nil {
		for _, e := range evicted {
			c.evictFn(e.id, e.obj)
		}
	}
}

// Size returns the current number of entries.
func (c *lruCache) Size() int {
	c.mu.RLock()
	size := len(c.items)
	c.mu.RUnlock()
	return size
}

// Stats returns the cache statistics.
func (c *lruCache) Stats() *Statistics {
	return c.stats
}

// Close shuts down the cache. The LRU cache has no background work.
func (c *lruCache) Close() error {
	return nil
}

// evictLRULocked removes the least recently used entry. Must be called
// with the mutex held; returns the evicted object for the callback.
func (c *lruCache) evictLRULocked() (storage.ObjId, storage.Obj) {
	element := c.order.Back()
	if element == nil {
		return storage.ObjId{}, nil
	}

	e := element.Value.(*entry)
	c.removeElementLocked(element)

	c.stats.Eviction()
	if c.metrics != nil {
		c.metrics.recordEviction()
	}

	if e.negative {
		return storage.ObjId{}, nil
	}
	return e.id, e.obj
}

func (c *lruCache) removeElementLocked(element *list.Element) {
	e := element.Value.(*entry)
	delete(c.items, e.id)
	c.order.Remove(element)
}

func (c *lruCache) recordMiss() {
	c.stats.Miss()
	if c.metrics != nil {
		c.metrics.recordMiss()
	}
}

func (c *lruCache) recordPutLocked() {
	c.stats.Put()
	if c.metrics != nil {
		c.metrics.recordPut()
	}
}

func (c *lruCache) updateSizeLocked() {
	c.stats.UpdateSize(int64(len(c.items)))
	if c.metrics != nil {
		c.metrics.updateSize(len(c.items))
	}
}
