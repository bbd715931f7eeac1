// Package cache holds small in-process caches in front of slow lookups.
package cache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Loader fetches the value for a key on a cache miss
type Loader[K comparable, V any] func(ctx context.Context, key K) (V, error)

type entry[V any] struct {
	value   V
	expires time.Time
}

// TTL is a size-bounded read-through cache. Entries live for the cache's ttl
// unless Put gave them a shorter one. Failed loads are not cached.
type TTL[K comparable, V any] struct {
	lru  *expirable.LRU[K, entry[V]]
	ttl  time.Duration
	load Loader[K, V]
	now  func() time.Time
}

// NewTTL returns a cache of at most size entries, each living for ttl. load
// may be nil when the cache is only filled with Put.
func NewTTL[K comparable, V any](size int, ttl time.Duration, load Loader[K, V]) *TTL[K, V] {
	return &TTL[K, V]{
		lru:  expirable.NewLRU[K, entry[V]](size, nil, ttl),
		ttl:  ttl,
		load: load,
		now:  time.Now,
	}
}

// Get returns the cached value for key, loading it on a miss or after expiry
func (c *TTL[K, V]) Get(ctx context.Context, key K) (V, error) {
	if v, ok := c.Lookup(key); ok {
		return v, nil
	}
	var zero V
	if c.load == nil {
		return zero, nil
	}
	v, err := c.load(ctx, key)
	if err != nil {
		return zero, err
	}
	c.Put(key, v, c.ttl)
	return v, nil
}

// Lookup returns the live value for key without loading it
func (c *TTL[K, V]) Lookup(key K) (V, bool) {
	e, ok := c.lru.Get(key)
	if !ok {
		var zero V
		return zero, false
	}
	if !e.expires.IsZero() && !c.now().Before(e.expires) {
		c.lru.Remove(key)
		var zero V
		return zero, false
	}
	return e.value, true
}

// Put stores value for ttl. A ttl of zero or one longer than the cache's own
// is capped at the cache's ttl.
func (c *TTL[K, V]) Put(key K, value V, ttl time.Duration) {
	e := entry[V]{value: value}
	if ttl > 0 && (c.ttl <= 0 || ttl < c.ttl) {
		e.expires = c.now().Add(ttl)
	}
	c.lru.Add(key, e)
}

// Invalidate drops key so the next Get reloads it
func (c *TTL[K, V]) Invalidate(key K) {
	c.lru.Remove(key)
}

// Len is the number of entries the LRU still holds
func (c *TTL[K, V]) Len() int {
	return c.lru.Len()
}
