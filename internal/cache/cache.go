// Package cache provides the time-boxed, size-bounded tables used for lookup
// results and secondary-provider price groups.
//
// Entries are evicted oldest-inserted first. Reads never refresh recency, so
// the table behaves as a FIFO with lazy TTL expiry rather than an LRU.
package cache

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/codyseavey/cardprice/internal/metrics"
)

// Entry is one cached value with the time it was stored
type Entry[V any] struct {
	Key       string    `msgpack:"k"`
	Value     V         `msgpack:"v"`
	Timestamp time.Time `msgpack:"t"`
}

// Cache is a TTL table safe for concurrent use
type Cache[V any] struct {
	name  string
	ttl   time.Duration
	max   int
	items *lru.Cache[string, Entry[V]]
	dirty atomic.Bool
	now   func() time.Time

	// guards remove-then-add in Put and Restore, and expired-entry removal
	mu sync.Mutex
}

// New creates a cache holding at most maxEntries values for ttl each
func New[V any](name string, ttl time.Duration, maxEntries int) (*Cache[V], error) {
	if maxEntries <= 0 {
		return nil, fmt.Errorf("cache %s: max entries must be positive, got %d", name, maxEntries)
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("cache %s: ttl must be positive, got %v", name, ttl)
	}
	items, err := lru.New[string, Entry[V]](maxEntries)
	if err != nil {
		return nil, fmt.Errorf("cache %s: %w", name, err)
	}
	return &Cache[V]{
		name:  name,
		ttl:   ttl,
		max:   maxEntries,
		items: items,
		now:   time.Now,
	}, nil
}

// Name returns the cache name used for persistence and metrics
func (c *Cache[V]) Name() string { return c.name }

// SetClock replaces the time source. Intended for tests.
func (c *Cache[V]) SetClock(now func() time.Time) { c.now = now }

// Get returns the value for key. An expired entry is removed and reported as absent.
func (c *Cache[V]) Get(key string) (V, bool) {
	var zero V
	e, ok := c.items.Peek(key)
	if !ok {
		metrics.CacheLookupsTotal.WithLabelValues(c.name, "miss").Inc()
		return zero, false
	}
	if c.expired(e) {
		c.removeExpired(key)
		metrics.CacheLookupsTotal.WithLabelValues(c.name, "expired").Inc()
		return zero, false
	}
	metrics.CacheLookupsTotal.WithLabelValues(c.name, "hit").Inc()
	return e.Value, true
}

// removeExpired drops key only if the stored entry is still expired, so a
// Put racing the read keeps its fresh value.
func (c *Cache[V]) removeExpired(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.items.Peek(key); ok && c.expired(e) {
		c.items.Remove(key)
		c.dirty.Store(true)
		metrics.CacheEntries.WithLabelValues(c.name).Set(float64(c.items.Len()))
	}
}

// Put stores value under key as the newest entry, evicting the single
// oldest entry when the table is full.
func (c *Cache[V]) Put(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items.Remove(key)
	c.items.Add(key, Entry[V]{Key: key, Value: value, Timestamp: c.now()})
	c.dirty.Store(true)
	metrics.CacheEntries.WithLabelValues(c.name).Set(float64(c.items.Len()))
}

// Len returns the number of stored entries, expired ones included
func (c *Cache[V]) Len() int { return c.items.Len() }

// Dirty reports whether the table changed since the last snapshot
func (c *Cache[V]) Dirty() bool { return c.dirty.Load() }

// Snapshot returns the live entries, oldest first
func (c *Cache[V]) Snapshot() []Entry[V] {
	keys := c.items.Keys()
	out := make([]Entry[V], 0, len(keys))
	for _, k := range keys {
		e, ok := c.items.Peek(k)
		if !ok || c.expired(e) {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Restore loads persisted entries, dropping those already past their TTL.
// Returns the number of entries kept.
func (c *Cache[V]) Restore(entries []Entry[V]) int {
	sorted := make([]Entry[V], len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	c.mu.Lock()
	defer c.mu.Unlock()
	kept := 0
	for _, e := range sorted {
		if e.Key == "" || c.expired(e) {
			continue
		}
		c.items.Remove(e.Key)
		c.items.Add(e.Key, e)
		kept++
	}
	metrics.CacheEntries.WithLabelValues(c.name).Set(float64(c.items.Len()))
	return kept
}

// MarshalSnapshot encodes the live entries if the table is dirty. The dirty
// flag is cleared; call MarkDirty if the encoded bytes could not be saved.
func (c *Cache[V]) MarshalSnapshot() ([]byte, bool, error) {
	if !c.dirty.Swap(false) {
		return nil, false, nil
	}
	payload, err := msgpack.Marshal(c.Snapshot())
	if err != nil {
		c.dirty.Store(true)
		return nil, false, fmt.Errorf("cache %s: encode snapshot: %w", c.name, err)
	}
	return payload, true, nil
}

// UnmarshalSnapshot restores entries from a MarshalSnapshot payload
func (c *Cache[V]) UnmarshalSnapshot(payload []byte) (int, error) {
	if len(payload) == 0 {
		return 0, nil
	}
	var entries []Entry[V]
	if err := msgpack.Unmarshal(payload, &entries); err != nil {
		return 0, fmt.Errorf("cache %s: decode snapshot: %w", c.name, err)
	}
	return c.Restore(entries), nil
}

// MarkDirty forces the next snapshot to be written
func (c *Cache[V]) MarkDirty() { c.dirty.Store(true) }

func (c *Cache[V]) expired(e Entry[V]) bool {
	return c.now().Sub(e.Timestamp) > c.ttl
}
