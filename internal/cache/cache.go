// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package cache provides a small soft-limit cache for renderer-owned
// objects that wrap GPU resources (compiled programs, sampler kernels,
// dither matrices).
//
// Unlike a plain map, evicted values flow through an eviction callback so
// their GPU resources can be released. The cache is access-ordered: when
// the soft limit is exceeded, the least recently used entry goes first.
package cache

// Cache is an access-ordered cache with a soft entry limit. The zero value
// is not usable; create caches with New.
//
// Cache is not safe for concurrent use. The renderer serializes all access
// per instance, matching the rest of the pipeline.
type Cache[K comparable, V any] struct {
	entries map[K]*entry[V]
	limit   int
	tick    int64
	onEvict func(K, V)
}

type entry[V any] struct {
	value V
	atime int64
}

// New creates a cache. limit 0 means unlimited. onEvict, if non-nil, runs
// for every entry removed by eviction, Delete or Flush.
func New[K comparable, V any](limit int, onEvict func(K, V)) *Cache[K, V] {
	return &Cache[K, V]{
		entries: make(map[K]*entry[V]),
		limit:   limit,
		onEvict: onEvict,
	}
}

// Get retrieves a value and marks it recently used.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	e, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	c.tick++
	e.atime = c.tick
	return e.value, true
}

// GetOrCreate returns the cached value for key, calling create on a miss.
// Creation errors are returned without caching.
func (c *Cache[K, V]) GetOrCreate(key K, create func() (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	v, err := create()
	if err != nil {
		var zero V
		return zero, err
	}
	c.Set(key, v)
	return v, nil
}

// Set stores a value, evicting the least recently used entry when the soft
// limit is exceeded. Replacing an existing key evicts the old value.
func (c *Cache[K, V]) Set(key K, value V) {
	if old, ok := c.entries[key]; ok && c.onEvict != nil {
		c.onEvict(key, old.value)
	}
	c.tick++
	c.entries[key] = &entry[V]{value: value, atime: c.tick}
	if c.limit > 0 && len(c.entries) > c.limit {
		c.evictOldest()
	}
}

// Delete removes an entry, running the eviction callback. Reports whether
// the entry existed.
func (c *Cache[K, V]) Delete(key K) bool {
	e, ok := c.entries[key]
	if !ok {
		return false
	}
	delete(c.entries, key)
	if c.onEvict != nil {
		c.onEvict(key, e.value)
	}
	return true
}

// Flush removes every entry, running the eviction callback for each.
func (c *Cache[K, V]) Flush() {
	for k, e := range c.entries {
		if c.onEvict != nil {
			c.onEvict(k, e.value)
		}
		delete(c.entries, k)
	}
	c.tick = 0
}

// Len returns the number of cached entries.
func (c *Cache[K, V]) Len() int { return len(c.entries) }

func (c *Cache[K, V]) evictOldest() {
	var (
		oldestKey K
		oldest    int64 = -1
	)
	for k, e := range c.entries {
		if oldest < 0 || e.atime < oldest {
			oldest = e.atime
			oldestKey = k
		}
	}
	if oldest >= 0 {
		c.Delete(oldestKey)
	}
}
