// Package cache provides the entity cache for graphcore.
//
// The cache sits in front of the store and holds decoded nodes and edges, so a
// hit costs a map lookup instead of a BadgerDB read plus decompression.
//
// Features:
// - LRU eviction bounded by entry count, byte footprint, or both
// - Thread-safe operations behind one mutex, independent of entity locks
// - Cache hit/miss/eviction statistics
//
// Usage:
//
//	c, _ := cache.New(cache.Options{Capacity: 10000})
//
//	node, err := c.GetOrLoad(cache.NodeKey(id), func() (cache.Entry, error) {
//		return engine.GetNode(id)
//	})
//
//	// After a write:
//	c.Invalidate(cache.NodeKey(id))
package cache

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/hashicorp/golang-lru/v2/simplelru"

	"github.com/orneryd/graphcore/pkg/storage"
)

// Kind separates node and edge ids, which live in different namespaces.
type Kind uint8

const (
	KindNode Kind = iota + 1
	KindEdge
)

// Key identifies a cached entity.
type Key struct {
	Kind Kind
	ID   string
}

// NodeKey returns the cache key of a node.
func NodeKey(id storage.NodeID) Key { return Key{Kind: KindNode, ID: string(id)} }

// EdgeKey returns the cache key of an edge.
func EdgeKey(id storage.EdgeID) Key { return Key{Kind: KindEdge, ID: string(id)} }

// Entry is anything the cache can hold. *storage.Node and *storage.Edge
// satisfy it.
type Entry interface {
	Size() int
}

// Options bounds the cache.
type Options struct {
	// Capacity is the maximum number of entries. Must be positive.
	Capacity int
	// MaxBytes bounds the summed Entry.Size of all entries. 0 disables the
	// byte bound.
	MaxBytes int64
}

// EntityCache is a thread-safe LRU cache of decoded entities.
//
// The caller is responsible for ordering: a loader result must not be stored
// after a concurrent write to the same entity has invalidated it. pkg/graphdb
// guarantees this by loading under the entity's read lock and invalidating
// under its write lock.
//
// Example:
//
//	c, _ := cache.New(cache.Options{Capacity: 2})
//	c.Put(cache.NodeKey("a"), nodeA)
//	c.Put(cache.NodeKey("b"), nodeB)
//	c.Get(cache.NodeKey("a"))        // hit, a is now most recent
//	c.Put(cache.NodeKey("c"), nodeC) // evicts b
type EntityCache struct {
	mu       sync.Mutex
	lru      *simplelru.LRU[Key, Entry]
	maxBytes int64
	bytes    int64
	capacity int
	dropping bool // set while removing explicitly, so onEvict does not count it

	// Statistics
	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
	rejected  atomic.Uint64
}

// ErrEntryTooLarge is returned by Put for an entry that alone exceeds the
// byte bound. It wraps storage.ErrCapacityExceeded.
var ErrEntryTooLarge = fmt.Errorf("%w: entry larger than cache byte bound", storage.ErrCapacityExceeded)

// New creates an entity cache.
func New(opts Options) (*EntityCache, error) {
	if opts.Capacity <= 0 {
		return nil, fmt.Errorf("cache capacity must be positive, got %d", opts.Capacity)
	}
	if opts.MaxBytes < 0 {
		return nil, fmt.Errorf("cache byte bound must not be negative, got %d", opts.MaxBytes)
	}

	c := &EntityCache{maxBytes: opts.MaxBytes, capacity: opts.Capacity}
	lru, err := simplelru.NewLRU[Key, Entry](opts.Capacity, c.onEvict)
	if err != nil {
		return nil, err
	}
	c.lru = lru
	return c, nil
}

// onEvict runs under c.mu for every entry leaving the LRU.
func (c *EntityCache) onEvict(_ Key, e Entry) {
	c.bytes -= int64(e.Size())
	if !c.dropping {
		c.evictions.Add(1)
	}
}

// Get returns the cached entry for key. A hit promotes the entry to most
// recently used.
func (c *EntityCache) Get(key Key) (Entry, bool) {
	c.mu.Lock()
	e, ok := c.lru.Get(key)
	c.mu.Unlock()

	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return e, ok
}

// Put stores an entry, evicting least recently used entries until both bounds
// hold. Eviction only drops entries; the store is already durable.
func (c *EntityCache) Put(key Key, e Entry) error {
	size := int64(e.Size())

	c.mu.Lock()
	defer c.mu.Unlock()

	c.removeLocked(key)
	if c.maxBytes > 0 && size > c.maxBytes {
		c.rejected.Add(1)
		return ErrEntryTooLarge
	}
	for c.maxBytes > 0 && c.bytes+size > c.maxBytes {
		if _, _, ok := c.lru.RemoveOldest(); !ok {
			break
		}
	}
	c.lru.Add(key, e)
	c.bytes += size
	return nil
}

// GetOrLoad returns the cached entry for key, or calls load on a miss and
// caches its result. A nil entry from load (unknown id) is returned as-is and
// not cached. Entries too large for the byte bound are returned uncached.
func (c *EntityCache) GetOrLoad(key Key, load func() (Entry, error)) (Entry, error) {
	if e, ok := c.Get(key); ok {
		return e, nil
	}
	e, err := load()
	if err != nil || isNil(e) {
		return nil, err
	}
	if err := c.Put(key, e); err != nil && !errors.Is(err, ErrEntryTooLarge) {
		return nil, err
	}
	return e, nil
}

// Invalidate drops key from the cache, if present.
func (c *EntityCache) Invalidate(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeLocked(key)
}

func (c *EntityCache) removeLocked(key Key) {
	c.dropping = true
	c.lru.Remove(key)
	c.dropping = false
}

// Contains reports whether key is cached, without touching recency or stats.
func (c *EntityCache) Contains(key Key) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Contains(key)
}

// Purge empties the cache. Statistics are kept.
func (c *EntityCache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dropping = true
	c.lru.Purge()
	c.dropping = false
	c.bytes = 0
}

// Len returns the number of cached entries.
func (c *EntityCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Stats returns cache statistics.
func (c *EntityCache) Stats() Stats {
	hits := c.hits.Load()
	misses := c.misses.Load()

	c.mu.Lock()
	size := c.lru.Len()
	bytes := c.bytes
	c.mu.Unlock()

	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}

	return Stats{
		Size:      size,
		Capacity:  c.capacity,
		Bytes:     bytes,
		MaxBytes:  c.maxBytes,
		Hits:      hits,
		Misses:    misses,
		Evictions: c.evictions.Load(),
		Rejected:  c.rejected.Load(),
		HitRate:   hitRate,
	}
}

// Stats holds cache performance statistics.
type Stats struct {
	Size      int     // Current number of entries
	Capacity  int     // Maximum number of entries
	Bytes     int64   // Summed size of current entries
	MaxBytes  int64   // Byte bound (0 = none)
	Hits      uint64  // Number of cache hits
	Misses    uint64  // Number of cache misses
	Evictions uint64  // Entries dropped to make room
	Rejected  uint64  // Entries too large to cache
	HitRate   float64 // Hit rate percentage (0-100)
}

// isNil catches typed nil pointers wrapped in the Entry interface, e.g. a
// (*storage.Node)(nil) returned by a loader for an unknown id.
func isNil(e Entry) bool {
	switch v := e.(type) {
	case nil:
		return true
	case *storage.Node:
		return v == nil
	case *storage.Edge:
		return v == nil
	}
	return false
}
