// Package cache memoizes decoded GRIB datasets. Decoding a multi-hundred-MB
// file takes seconds; the viewer hits the same file repeatedly while scrubbing.
package cache

import (
	"sync"

	"github.com/loganrenz/narduk-grib/internal/domain"
	"github.com/loganrenz/narduk-grib/internal/observability"
)

// Decoder is the decode operation being memoized.
type Decoder interface {
	Decode(path string) (*domain.Dataset, error)
}

// CachedDecoder wraps a Decoder with an in-memory LRU cache keyed by file path.
type CachedDecoder struct {
	inner   Decoder
	cache   *lruCache
	metrics *observability.Metrics
}

// NewCachedDecoder creates a cache decorator around a decoder.
func NewCachedDecoder(inner Decoder, maxEntries int, metrics *observability.Metrics) *CachedDecoder {
	return &CachedDecoder{
		inner:   inner,
		cache:   newLRUCache(maxEntries),
		metrics: metrics,
	}
}

// Decode returns the cached dataset for path, decoding on a miss. Stored
// files are immutable (delete removes the blob and invalidates), so entries
// never go stale.
func (c *CachedDecoder) Decode(path string) (*domain.Dataset, error) {
	if ds, ok := c.cache.get(path); ok {
		c.metrics.DecodeCache.WithLabelValues("hit").Inc()
		return ds, nil
	}
	c.metrics.DecodeCache.WithLabelValues("miss").Inc()

	ds, err := c.inner.Decode(path)
	if err != nil {
		return nil, err
	}
	c.cache.put(path, ds)
	return ds, nil
}

// Invalidate drops the cached dataset for path, if present.
func (c *CachedDecoder) Invalidate(path string) {
	c.cache.invalidate(path)
}

// lruCache is a simple thread-safe LRU cache for decoded datasets.
type lruCache struct {
	maxEntries int
	mu         sync.Mutex
	entries    map[string]*entry
	head       *entry // most recently used
	tail       *entry // least recently used
}

type entry struct {
	key   string
	value *domain.Dataset
	prev  *entry
	next  *entry
}

func newLRUCache(maxEntries int) *lruCache {
	return &lruCache{
		maxEntries: maxEntries,
		entries:    make(map[string]*entry),
	}
}

func (c *lruCache) get(key string) (*domain.Dataset, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	c.moveToFront(e)
	return e.value, true
}

func (c *lruCache) put(key string, value *domain.Dataset) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = value
		c.moveToFront(e)
		return
	}

	e := &entry{key: key, value: value}
	c.entries[key] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictTail()
	}
}

func (c *lruCache) invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return
	}
	delete(c.entries, key)
	c.remove(e)
}

func (c *lruCache) moveToFront(e *entry) {
	if e == c.head {
		return
	}
	c.remove(e)
	c.addToFront(e)
}

func (c *lruCache) addToFront(e *entry) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *lruCache) remove(e *entry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
}

func (c *lruCache) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.remove(c.tail)
}
