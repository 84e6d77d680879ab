// Package cache provides caching implementations for the assistant daemon.
//
// Two backends are available:
//   - LRUCache: in-process TTL cache with a byte budget and
//     least-recently-read eviction. The default for a single-user daemon.
//   - RedisCache: Redis-backed, for setups that want the cache to survive
//     daemon restarts or be shared across machines.
//
// Both implement the Cache interface so they are fully interchangeable.
package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

const defaultTTL = time.Hour

// lruEntry is a single cached response together with its expiry time and
// byte cost. Entries live in the eviction list; the front of the list is the
// most recently read entry.
type lruEntry struct {
	key       string
	value     []byte
	expiresAt time.Time
	cost      int64
}

// LRUCache is an in-process cache with per-entry TTL and a configurable byte
// budget. When a Set would push the total size over the budget, the least
// recently READ entries (not the oldest inserted) are evicted until the new
// entry fits. Eviction happens synchronously inside Set.
//
// It is safe for concurrent use. A background goroutine periodically sweeps
// expired entries so that idle keys do not pin memory until the next read.
type LRUCache struct {
	mu       sync.Mutex
	entries  map[string]*list.Element
	order    *list.List // front = most recently read
	curBytes int64

	maxBytes   int64 // 0 = unbounded
	maxEntries int   // 0 = unbounded

	// now is replaceable in tests so TTL behaviour can be exercised without
	// real sleeps.
	now func() time.Time

	done      chan struct{}
	closeOnce sync.Once
}

// NewLRUCache creates an LRUCache and starts the background sweep loop.
// maxBytes bounds the total size of keys plus values (0 = unbounded);
// maxEntries bounds the entry count (0 = unbounded). The sweep goroutine
// stops when ctx is cancelled or Close is called.
func NewLRUCache(ctx context.Context, maxBytes int64, maxEntries int) *LRUCache {
	c := &LRUCache{
		entries:    make(map[string]*list.Element),
		order:      list.New(),
		maxBytes:   maxBytes,
		maxEntries: maxEntries,
		now:        time.Now,
		done:       make(chan struct{}),
	}
	go c.sweep(ctx)
	return c
}

// Get returns the cached value for key and marks the entry as most recently
// read. Returns (nil, false) on a miss or if the entry has expired; expired
// entries are removed lazily on access.
func (c *LRUCache) Get(_ context.Context, key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		return nil, false
	}

	ent := elem.Value.(*lruEntry)
	if c.now().After(ent.expiresAt) {
		c.removeLocked(elem)
		return nil, false
	}

	c.order.MoveToFront(elem)
	return ent.value, true
}

// Set stores value under key for the duration of ttl, replacing any existing
// entry for the same key. A zero or negative ttl falls back to one hour.
// Least-recently-read entries are evicted until the cache fits its budget.
func (c *LRUCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = defaultTTL
	}

	cost := int64(len(key) + len(value))

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		ent := elem.Value.(*lruEntry)
		c.curBytes += cost - ent.cost
		ent.value = value
		ent.cost = cost
		ent.expiresAt = c.now().Add(ttl)
		c.order.MoveToFront(elem)
	} else {
		ent := &lruEntry{
			key:       key,
			value:     value,
			expiresAt: c.now().Add(ttl),
			cost:      cost,
		}
		c.entries[key] = c.order.PushFront(ent)
		c.curBytes += cost
	}

	c.evictOverBudgetLocked()
	return nil
}

// Delete removes key from the cache. Returns nil if the key did not exist.
func (c *LRUCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		c.removeLocked(elem)
	}
	return nil
}

// Len returns the number of entries currently held, including entries that
// have expired but not yet been swept.
func (c *LRUCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Bytes returns the current total byte cost of all entries.
func (c *LRUCache) Bytes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.curBytes
}

// EvictExpired removes every entry whose TTL has elapsed.
func (c *LRUCache) EvictExpired() {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	var next *list.Element
	for elem := c.order.Front(); elem != nil; elem = next {
		next = elem.Next()
		if now.After(elem.Value.(*lruEntry).expiresAt) {
			c.removeLocked(elem)
		}
	}
}

// Close stops the background sweep goroutine. Safe to call multiple times.
func (c *LRUCache) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// evictOverBudgetLocked drops entries from the back of the eviction list
// (least recently read first) until both budgets are respected. The most
// recent entry is never evicted, so a single oversized response still gets
// cached rather than thrashing.
func (c *LRUCache) evictOverBudgetLocked() {
	for c.order.Len() > 1 && c.overBudgetLocked() {
		c.removeLocked(c.order.Back())
	}
}

func (c *LRUCache) overBudgetLocked() bool {
	if c.maxBytes > 0 && c.curBytes > c.maxBytes {
		return true
	}
	if c.maxEntries > 0 && c.order.Len() > c.maxEntries {
		return true
	}
	return false
}

func (c *LRUCache) removeLocked(elem *list.Element) {
	ent := elem.Value.(*lruEntry)
	c.order.Remove(elem)
	delete(c.entries, ent.key)
	c.curBytes -= ent.cost
}

// sweep runs every 5 minutes and evicts all expired entries.
func (c *LRUCache) sweep(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.EvictExpired()
		case <-ctx.Done():
			return
		case <-c.done:
			return
		}
	}
}
