// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package cache

import (
	"sync"

	"github.com/luxfi/geth/common/lru"
)

// LRUCache is a size-bounded cache for immutable data. Entries are never
// stale, only evicted.
type LRUCache[K comparable, V any] struct {
	cache *lru.Cache[K, V]
	lock  sync.RWMutex
}

func NewLRUCache[K comparable, V any](size int) *LRUCache[K, V] {
	return &LRUCache[K, V]{
		cache: lru.NewCache[K, V](size),
	}
}

// Contains reports whether key is cached without touching its recency.
func (c *LRUCache[K, V]) Contains(key K) bool {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return c.cache.Contains(key)
}

// Add caches value under key, evicting the least recently used entry when full.
func (c *LRUCache[K, V]) Add(key K, value V) {
	c.lock.Lock()
	c.cache.Add(key, value)
	c.lock.Unlock()
}

// ContainsOrAdd reports whether key was already cached and adds it otherwise,
// as one step.
func (c *LRUCache[K, V]) ContainsOrAdd(key K, value V) bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.cache.Contains(key) {
		return true
	}
	c.cache.Add(key, value)
	return false
}
