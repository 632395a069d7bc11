// Package cache is a generic in-process key/value store with per-entry expiry
// and a bounded size. When full it evicts the oldest-inserted entry, after first
// sweeping anything already expired. It knows nothing about what it stores.
package cache

import (
	"container/list"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

const (
	DefaultMaxEntries    = 10_000
	DefaultSweepInterval = time.Minute
)

type entry[K comparable, V any] struct {
	value     V
	expiresAt time.Time
	elem      *list.Element // position in insertion order; Value is K
}

// Stats is a point-in-time snapshot of cache counters.
type Stats struct {
	Hits        uint64
	Misses      uint64
	Evictions   uint64
	Expirations uint64
	Entries     int
}

// Cache is safe for concurrent use. Construct with New and release with Close.
type Cache[K comparable, V any] struct {
	mu         sync.Mutex
	items      map[K]*entry[K, V]
	order      *list.List
	maxEntries int
	now        func() time.Time

	group singleflight.Group

	hits        atomic.Uint64
	misses      atomic.Uint64
	evictions   atomic.Uint64
	expirations atomic.Uint64

	sweepInterval time.Duration
	stop          chan struct{}
	done          chan struct{}
	closeOnce     sync.Once
}

type options struct {
	maxEntries    int
	sweepInterval time.Duration
	now           func() time.Time
}

type Option func(*options)

// WithMaxEntries bounds the number of stored entries. Zero or negative means unbounded.
func WithMaxEntries(n int) Option {
	return func(o *options) { o.maxEntries = n }
}

// WithSweepInterval sets how often expired entries are removed in the background.
// Zero disables the background sweep; expired entries are then only purged on
// read or when capacity is reached.
func WithSweepInterval(d time.Duration) Option {
	return func(o *options) { o.sweepInterval = d }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// New creates a cache and starts its background sweep when one is configured.
func New[K comparable, V any](opts ...Option) *Cache[K, V] {
	o := options{
		maxEntries:    DefaultMaxEntries,
		sweepInterval: DefaultSweepInterval,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}

	c := &Cache[K, V]{
		items:         make(map[K]*entry[K, V]),
		order:         list.New(),
		maxEntries:    o.maxEntries,
		now:           o.now,
		sweepInterval: o.sweepInterval,
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}

	if c.sweepInterval > 0 {
		go c.janitor()
	} else {
		close(c.done)
	}
	return c
}

// Set stores value under key for ttl. A non-positive ttl removes the key instead.
// Overwriting a key counts as a fresh insertion for eviction order.
func (c *Cache[K, V]) Set(key K, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ttl <= 0 {
		c.removeLocked(key)
		return
	}

	now := c.now()
	if e, ok := c.items[key]; ok {
		e.value = value
		e.expiresAt = now.Add(ttl)
		c.order.MoveToBack(e.elem)
		return
	}

	if c.maxEntries > 0 && len(c.items) >= c.maxEntries {
		c.sweepLocked(now)
		for len(c.items) >= c.maxEntries {
			c.evictOldestLocked()
		}
	}

	e := &entry[K, V]{value: value, expiresAt: now.Add(ttl)}
	e.elem = c.order.PushBack(key)
	c.items[key] = e
}

// Get returns the live value for key. Expired entries are removed and reported as misses.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	v, ok := c.lookup(key)
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return v, ok
}

// GetOrSet returns the cached value for key, or calls compute on a miss and stores
// its result for ttl(result). Concurrent misses on the same key share one compute
// call. When compute fails nothing is stored and the error is returned.
func (c *Cache[K, V]) GetOrSet(key K, compute func() (V, error), ttl func(V) time.Duration) (V, error) {
	v, _, err := c.GetOrLoad(key, compute, ttl)
	return v, err
}

// flight is what one shared compute call hands to every caller waiting on it.
type flight[V any] struct {
	value  V
	cached bool
}

// GetOrLoad behaves like GetOrSet and also reports whether the value was served
// from the cache. Callers that waited on another caller's compute report false.
func (c *Cache[K, V]) GetOrLoad(key K, compute func() (V, error), ttl func(V) time.Duration) (V, bool, error) {
	if v, ok := c.Get(key); ok {
		return v, true, nil
	}

	res, err, _ := c.group.Do(flightKey(key), func() (any, error) {
		// a flight that finished just before this one may have filled the entry
		if v, ok := c.lookup(key); ok {
			return flight[V]{value: v, cached: true}, nil
		}
		v, err := compute()
		if err != nil {
			return nil, err
		}
		c.Set(key, v, ttl(v))
		return flight[V]{value: v}, nil
	})
	if err != nil {
		var zero V
		return zero, false, err
	}
	f, _ := res.(flight[V])
	return f.value, f.cached, nil
}

// Delete removes key if present.
func (c *Cache[K, V]) Delete(key K) {
	c.mu.Lock()
	c.removeLocked(key)
	c.mu.Unlock()
}

// Clear removes every entry.
func (c *Cache[K, V]) Clear() {
	c.mu.Lock()
	c.items = make(map[K]*entry[K, V])
	c.order.Init()
	c.mu.Unlock()
}

// Len returns the number of stored entries, including expired ones not yet swept.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Sweep removes all expired entries now and returns how many were removed.
func (c *Cache[K, V]) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sweepLocked(c.now())
}

func (c *Cache[K, V]) Stats() Stats {
	return Stats{
		Hits:        c.hits.Load(),
		Misses:      c.misses.Load(),
		Evictions:   c.evictions.Load(),
		Expirations: c.expirations.Load(),
		Entries:     c.Len(),
	}
}

// Close stops the background sweep and waits for it to exit. The cache remains
// usable afterwards. Safe to call more than once.
func (c *Cache[K, V]) Close() {
	c.closeOnce.Do(func() {
		close(c.stop)
	})
	<-c.done
}

func (c *Cache[K, V]) lookup(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	e, ok := c.items[key]
	if !ok {
		return zero, false
	}
	if !c.now().Before(e.expiresAt) {
		c.removeLocked(key)
		c.expirations.Add(1)
		return zero, false
	}
	return e.value, true
}

func (c *Cache[K, V]) janitor() {
	defer close(c.done)

	ticker := time.NewTicker(c.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.Sweep()
		case <-c.stop:
			return
		}
	}
}

func (c *Cache[K, V]) sweepLocked(now time.Time) int {
	removed := 0
	for elem := c.order.Front(); elem != nil; {
		next := elem.Next()
		key := elem.Value.(K)
		if e := c.items[key]; !now.Before(e.expiresAt) {
			c.order.Remove(elem)
			delete(c.items, key)
			removed++
		}
		elem = next
	}
	c.expirations.Add(uint64(removed))
	return removed
}

func (c *Cache[K, V]) evictOldestLocked() {
	front := c.order.Front()
	if front == nil {
		return
	}
	key := c.order.Remove(front).(K)
	delete(c.items, key)
	c.evictions.Add(1)
}

func (c *Cache[K, V]) removeLocked(key K) {
	if e, ok := c.items[key]; ok {
		c.order.Remove(e.elem)
		delete(c.items, key)
	}
}

func flightKey[K comparable](key K) string {
	if s, ok := any(key).(string); ok {
		return s
	}
	return fmt.Sprintf("%#v", key)
}
