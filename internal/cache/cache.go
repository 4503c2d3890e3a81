// Package cache is a small thread-safe in-memory key/value store with
// per-item expiry and a background sweep of expired items.
package cache

import (
	"strings"
	"sync"
	"time"
)

type item[V any] struct {
	value      V
	expiration int64 // unix nanos, 0 never expires
}

// Cache maps string keys to values of type V.
//
//	urls := cache.New[string](5*time.Minute, 10*time.Minute)
//	defer urls.Stop()
//	urls.Set("avatars/04A1B2/x.jpg", signed)
type Cache[V any] struct {
	mu                sync.RWMutex
	items             map[string]item[V]
	defaultExpiration time.Duration
	stop              chan struct{}
	stopOnce          sync.Once
	now               func() time.Time
}

// New starts the cleanup goroutine when cleanupInterval > 0; call Stop to end it.
func New[V any](defaultExpiration, cleanupInterval time.Duration) *Cache[V] {
	c := &Cache[V]{
		items:             make(map[string]item[V]),
		defaultExpiration: defaultExpiration,
		stop:              make(chan struct{}),
		now:               time.Now,
	}
	if cleanupInterval > 0 {
		go c.cleanup(cleanupInterval)
	}
	return c
}

func (c *Cache[V]) Set(key string, value V) {
	c.SetWithTTL(key, value, c.defaultExpiration)
}

// SetWithTTL stores value for d; d <= 0 keeps it until deleted.
func (c *Cache[V]) SetWithTTL(key string, value V, d time.Duration) {
	var exp int64
	if d > 0 {
		exp = c.now().Add(d).UnixNano()
	}
	c.mu.Lock()
	c.items[key] = item[V]{value: value, expiration: exp}
	c.mu.Unlock()
}

// Get returns the value if present and not expired.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	it, found := c.items[key]
	c.mu.RUnlock()

	if !found || c.expired(it, c.now().UnixNano()) {
		var zero V
		if found {
			c.Delete(key)
		}
		return zero, false
	}
	return it.value, true
}

func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	delete(c.items, key)
	c.mu.Unlock()
}

// DeletePrefix drops every key starting with prefix and returns how many went.
func (c *Cache[V]) DeletePrefix(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for key := range c.items {
		if strings.HasPrefix(key, prefix) {
			delete(c.items, key)
			n++
		}
	}
	return n
}

func (c *Cache[V]) Clear() {
	c.mu.Lock()
	c.items = make(map[string]item[V])
	c.mu.Unlock()
}

// Count includes items that expired but were not swept yet.
func (c *Cache[V]) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

type Stats struct {
	TotalItems   int `json:"total_items"`
	ExpiredItems int `json:"expired_items"`
	ValidItems   int `json:"valid_items"`
}

func (c *Cache[V]) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := Stats{TotalItems: len(c.items)}
	now := c.now().UnixNano()
	for _, it := range c.items {
		if c.expired(it, now) {
			stats.ExpiredItems++
		} else {
			stats.ValidItems++
		}
	}
	return stats
}

// Stop ends the cleanup goroutine. Safe to call more than once.
func (c *Cache[V]) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *Cache[V]) expired(it item[V], now int64) bool {
	return it.expiration > 0 && now > it.expiration
}

func (c *Cache[V]) cleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.deleteExpired()
		case <-c.stop:
			return
		}
	}
}

func (c *Cache[V]) deleteExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now().UnixNano()
	for key, it := range c.items {
		if c.expired(it, now) {
			delete(c.items, key)
		}
	}
}
