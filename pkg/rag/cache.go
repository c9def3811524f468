package rag

import (
	"sync"
	"time"

	"github.com/tamma-ai/tamma/pkg/models"
)

type cacheEntry struct {
	chunks    []models.ContextChunk
	touchedAt time.Time
}

// ResultCache is an LRU+TTL cache of ranked chunk lists keyed by query.
// Any Get or Set refreshes the entry's timestamp; inserting past
// maxEntries evicts the entry with the oldest timestamp.
type ResultCache struct {
	mu         sync.Mutex
	entries    map[string]*cacheEntry
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
}

// NewResultCache creates a result cache. maxEntries <= 0 disables the
// size bound; ttl <= 0 disables expiry.
func NewResultCache(ttl time.Duration, maxEntries int) *ResultCache {
	return &ResultCache{
		entries:    make(map[string]*cacheEntry),
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

// Get returns the cached chunks for a key, refreshing its timestamp.
// Expired entries are removed and miss.
func (c *ResultCache) Get(key string) ([]models.ContextChunk, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.ttl > 0 && c.now().Sub(entry.touchedAt) > c.ttl {
		delete(c.entries, key)
		return nil, false
	}
	entry.touchedAt = c.now()
	return entry.chunks, true
}

// Set stores chunks under a key, evicting the stalest entry when full.
func (c *ResultCache) Set(key string, chunks []models.ContextChunk) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if entry, ok := c.entries[key]; ok {
		entry.chunks = chunks
		entry.touchedAt = c.now()
		return
	}
	if c.maxEntries > 0 && len(c.entries) >= c.maxEntries {
		c.evictOldestLocked()
	}
	c.entries[key] = &cacheEntry{chunks: chunks, touchedAt: c.now()}
}

func (c *ResultCache) evictOldestLocked() {
	var oldestKey string
	var oldestAt time.Time
	first := true
	for key, entry := range c.entries {
		if first || entry.touchedAt.Before(oldestAt) {
			oldestKey = key
			oldestAt = entry.touchedAt
			first = false
		}
	}
	if !first {
		delete(c.entries, oldestKey)
	}
}

// Len returns the number of live entries.
func (c *ResultCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// PurgeExpired removes every expired entry, returning the count.
func (c *ResultCache) PurgeExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ttl <= 0 {
		return 0
	}
	now := c.now()
	removed := 0
	for key, entry := range c.entries {
		if now.Sub(entry.touchedAt) > c.ttl {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Clear drops every entry.
func (c *ResultCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*cacheEntry)
}
