// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package corestore

import (
	"container/list"
	"sync"
)

// knownMissingCapacity bounds the known-missing cache (spec.md §9's
// open question on cache eviction policy, resolved here as a fixed-size
// LRU rather than an unbounded set: a store that spends a long session
// talking to churny peers advertising discovery keys it will never
// have must not grow this set without bound).
const knownMissingCapacity = 65536

// knownMissingCache remembers discovery keys a peer has advertised
// that this store has confirmed do not exist locally, so a repeat
// advertisement from the same or another peer skips the storage.Has
// round trip (spec.md §4.6.5 step 2). It is deliberately a cache, not
// a source of truth: Check answering false never blocks correctness,
// only a redundant existence check.
type knownMissingCache struct {
	mu       sync.Mutex
	capacity int
	order    *list.List
	entries  map[string]*list.Element
}

func newKnownMissingCache(capacity int) *knownMissingCache {
	return &knownMissingCache{
		capacity: capacity,
		order:    list.New(),
		entries:  make(map[string]*list.Element),
	}
}

// Check reports whether id is currently marked missing, refreshing its
// recency if so.
func (c *knownMissingCache) Check(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[id]
	if !ok {
		return false
	}
	c.order.MoveToFront(el)
	return true
}

// Mark records id as missing, evicting the least recently marked entry
// if the cache is at capacity.
func (c *knownMissingCache) Mark(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[id]; ok {
		c.order.MoveToFront(el)
		return
	}

	el := c.order.PushFront(id)
	c.entries[id] = el

	if c.order.Len() > c.capacity {
		oldest := c.order.Back()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.entries, oldest.Value.(string))
		}
	}
}

// Clear removes id from the cache, used once a core under that
// discovery key is actually created locally.
func (c *knownMissingCache) Clear(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[id]; ok {
		c.order.Remove(el)
		delete(c.entries, id)
	}
}
