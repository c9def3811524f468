package docs

import (
	"sync"
	"time"
)

// cacheEntry holds one fetched document with its fetch timestamp.
type cacheEntry struct {
	doc       Doc
	fetchedAt time.Time
}

// Cache is a thread-safe document cache with TTL expiration. Expired
// entries are cleaned up lazily on Get; there is no background goroutine.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*cacheEntry
	ttl     time.Duration
}

// NewCache creates a cache with the given TTL.
func NewCache(ttl time.Duration) *Cache {
	return &Cache{
		entries: make(map[string]*cacheEntry),
		ttl:     ttl,
	}
}

// Get returns the cached document if present and not expired.
func (c *Cache) Get(url string) (Doc, bool) {
	c.mu.RLock()
	entry, ok := c.entries[url]
	c.mu.RUnlock()

	if !ok {
		return Doc{}, false
	}

	if time.Since(entry.fetchedAt) > c.ttl {
		// Re-check under the write lock: a concurrent Set may have replaced
		// the entry with a fresh one since the read above.
		c.mu.Lock()
		if current, ok := c.entries[url]; ok && time.Since(current.fetchedAt) > c.ttl {
			delete(c.entries, url)
		}
		c.mu.Unlock()
		return Doc{}, false
	}

	return entry.doc, true
}

// Set stores a document with the current timestamp.
func (c *Cache) Set(url string, doc Doc) {
	c.mu.Lock()
	c.entries[url] = &cacheEntry{
		doc:       doc,
		fetchedAt: time.Now(),
	}
	c.mu.Unlock()
}

// PurgeExpired removes every expired document, returning the count.
func (c *Cache) PurgeExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for url, entry := range c.entries {
		if time.Since(entry.fetchedAt) > c.ttl {
			delete(c.entries, url)
			removed++
		}
	}
	return removed
}
