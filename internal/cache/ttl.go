// SPDX-License-Identifier: MIT

// Package cache holds the scheduled-programs set and a small TTL cache.
package cache

import (
	"sync"
	"time"
)

// Cache is a TTL key/value cache.
type Cache interface {
	// Get returns the value for key if present and not expired.
	Get(key string) (any, bool)
	// Set stores value for ttl.
	Set(key string, value any, ttl time.Duration)
	Delete(key string)
	Clear()
	Stats() Stats
}

// Stats holds cache counters.
type Stats struct {
	Hits      int64
	Misses    int64
	Sets      int64
	Evictions int64
	Size      int
}

type ttlEntry struct {
	value     any
	expiresAt time.Time
}

// MemoryCache is an in-memory Cache with optional background eviction.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]ttlEntry
	stats   Stats
	now     func() time.Time

	stopOnce sync.Once
	stop     chan struct{}
}

// NewMemoryCache returns a cache. A positive cleanupInterval starts a janitor
// goroutine that must be released with Stop.
func NewMemoryCache(cleanupInterval time.Duration) *MemoryCache {
	c := &MemoryCache{
		entries: make(map[string]ttlEntry),
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	if cleanupInterval > 0 {
		go c.janitor(cleanupInterval)
	}
	return c
}

func (c *MemoryCache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || !c.now().Before(e.expiresAt) {
		c.stats.Misses++
		return nil, false
	}
	c.stats.Hits++
	return e.value, true
}

func (c *MemoryCache) Set(key string, value any, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = ttlEntry{value: value, expiresAt: c.now().Add(ttl)}
	c.stats.Sets++
}

func (c *MemoryCache) Delete(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

func (c *MemoryCache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]ttlEntry)
	c.mu.Unlock()
}

func (c *MemoryCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Size = len(c.entries)
	return s
}

// Stop releases the janitor goroutine. Safe to call more than once.
func (c *MemoryCache) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *MemoryCache) evictExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	n := 0
	for k, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, k)
			n++
		}
	}
	c.stats.Evictions += int64(n)
	return n
}

func (c *MemoryCache) janitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.evictExpired()
		case <-c.stop:
			return
		}
	}
}
