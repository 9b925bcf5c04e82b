package geo

import (
	"context"
	"fmt"
	"sync"

	"github.com/civicdata/inspection-etl/internal/domain"
)

// CachedResolver wraps a ZipResolver with an in-memory LRU cache keyed by
// rounded coordinates. Inspection rows cluster heavily on establishment
// addresses, so repeated lookups for the same point dominate.
type CachedResolver struct {
	inner domain.ZipResolver
	cache *lruCache
}

// NewCachedResolver creates a cache decorator around a resolver.
func NewCachedResolver(inner domain.ZipResolver, maxEntries int) *CachedResolver {
	return &CachedResolver{
		inner: inner,
		cache: newLRUCache(maxEntries),
	}
}

func (c *CachedResolver) LookupZip(ctx context.Context, lat, lon float64) (string, error) {
	// Five decimal places is about one meter, well inside any ZIP polygon.
	key := fmt.Sprintf("%.5f,%.5f", lat, lon)
	if zip, ok := c.cache.get(key); ok {
		return zip, nil
	}
	zip, err := c.inner.LookupZip(ctx, lat, lon)
	if err != nil {
		return zip, err
	}
	// Only cache hits so points outside every polygon can be retried after
	// a boundary refresh.
	if zip != "" {
		c.cache.put(key, zip)
	}
	return zip, nil
}

// lruCache is a simple thread-safe LRU cache for zip lookups.
type lruCache struct {
	maxEntries int
	mu         sync.Mutex
	entries    map[string]*entry
	head       *entry // most recently used
	tail       *entry // least recently used
}

type entry struct {
	key   string
	value string
	prev  *entry
	next  *entry
}

func newLRUCache(maxEntries int) *lruCache {
	return &lruCache{
		maxEntries: maxEntries,
		entries:    make(map[string]*entry),
	}
}

func (c *lruCache) get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return "", false
	}
	c.moveToFront(e)
	return e.value, true
}

func (c *lruCache) put(key, value string) {
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
