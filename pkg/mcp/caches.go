package mcp

import (
	"sync"
	"time"
)

// CapabilitySet is one server's discovered lists.
type CapabilitySet struct {
	Tools     []Tool
	Resources []Resource
	Prompts   []Prompt
}

// capabilityEntry holds a cached capability set with a timestamp for TTL
// expiration.
type capabilityEntry struct {
	set       CapabilitySet
	fetchedAt time.Time
}

// CapabilityCache is a thread-safe TTL map of per-server capability sets.
// Expired entries are cleaned up lazily on Get, no background goroutine.
type CapabilityCache struct {
	mu      sync.RWMutex
	entries map[string]*capabilityEntry
	ttl     time.Duration
}

// NewCapabilityCache creates a capability cache with the given TTL.
func NewCapabilityCache(ttl time.Duration) *CapabilityCache {
	return &CapabilityCache{
		entries: make(map[string]*capabilityEntry),
		ttl:     ttl,
	}
}

// Get returns the cached capability set if present and not expired.
func (c *CapabilityCache) Get(serverID string) (CapabilitySet, bool) {
	c.mu.RLock()
	entry, ok := c.entries[serverID]
	c.mu.RUnlock()

	if !ok {
		return CapabilitySet{}, false
	}
	if time.Since(entry.fetchedAt) > c.ttl {
		c.mu.Lock()
		if current, ok := c.entries[serverID]; ok && time.Since(current.fetchedAt) > c.ttl {
			delete(c.entries, serverID)
		}
		c.mu.Unlock()
		return CapabilitySet{}, false
	}
	return entry.set, true
}

// Set stores a capability set with the current timestamp.
func (c *CapabilityCache) Set(serverID string, set CapabilitySet) {
	c.mu.Lock()
	c.entries[serverID] = &capabilityEntry{set: set, fetchedAt: time.Now()}
	c.mu.Unlock()
}

// Invalidate removes one server's cached set, forcing re-discovery.
func (c *CapabilityCache) Invalidate(serverID string) {
	c.mu.Lock()
	delete(c.entries, serverID)
	c.mu.Unlock()
}

// PurgeExpired removes every expired entry, returning the count.
func (c *CapabilityCache) PurgeExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for serverID, entry := range c.entries {
		if time.Since(entry.fetchedAt) > c.ttl {
			delete(c.entries, serverID)
			removed++
		}
	}
	return removed
}

// resourceEntry holds cached resource content with its insertion timestamp.
type resourceEntry struct {
	content    []byte
	insertedAt time.Time
}

// ResourceCache is a byte-bounded LRU cache for resource bodies. Eviction
// scans for the oldest timestamp; maxBytes is small enough (configuration
// bounded) that the O(n) scan is fine.
type ResourceCache struct {
	mu       sync.Mutex
	entries  map[string]*resourceEntry
	maxBytes int
	curBytes int
}

// NewResourceCache creates a resource content cache bounded to maxBytes.
func NewResourceCache(maxBytes int) *ResourceCache {
	return &ResourceCache{
		entries:  make(map[string]*resourceEntry),
		maxBytes: maxBytes,
	}
}

// Get returns cached content. A hit refreshes the entry's timestamp (LRU).
func (c *ResourceCache) Get(uri string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[uri]
	if !ok {
		return nil, false
	}
	entry.insertedAt = time.Now()
	return entry.content, true
}

// Set stores content, evicting oldest entries until the byte budget holds.
// Content larger than the whole budget is not cached at all.
func (c *ResourceCache) Set(uri string, content []byte) {
	if len(content) > c.maxBytes {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.entries[uri]; ok {
		c.curBytes -= len(old.content)
		delete(c.entries, uri)
	}

	for c.curBytes+len(content) > c.maxBytes && len(c.entries) > 0 {
		c.evictOldestLocked()
	}

	c.entries[uri] = &resourceEntry{content: content, insertedAt: time.Now()}
	c.curBytes += len(content)
}

// evictOldestLocked removes the entry with the oldest timestamp.
func (c *ResourceCache) evictOldestLocked() {
	var oldestKey string
	var oldestAt time.Time
	first := true
	for key, entry := range c.entries {
		if first || entry.insertedAt.Before(oldestAt) {
			oldestKey = key
			oldestAt = entry.insertedAt
			first = false
		}
	}
	if !first {
		c.curBytes -= len(c.entries[oldestKey].content)
		delete(c.entries, oldestKey)
	}
}

// Bytes returns the current cached byte total.
func (c *ResourceCache) Bytes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.curBytes
}

// Len returns the number of cached entries.
func (c *ResourceCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
