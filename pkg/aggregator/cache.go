package aggregator

import (
	"sync"
	"time"

	"github.com/tamma-ai/tamma/pkg/models"
)

type responseEntry struct {
	response  *models.ContextResponse
	touchedAt time.Time
}

// responseCache is the LRU+TTL result cache of assembled responses. Every
// Get and Set refreshes the entry timestamp; inserting past maxEntries
// evicts the stalest entry.
type responseCache struct {
	mu         sync.Mutex
	entries    map[string]*responseEntry
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
}

func newResponseCache(ttl time.Duration, maxEntries int) *responseCache {
	return &responseCache{
		entries:    make(map[string]*responseEntry),
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

func (c *responseCache) Get(key string) (*models.ContextResponse, bool) {
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
	return entry.response, true
}

func (c *responseCache) Set(key string, response *models.ContextResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if entry, ok := c.entries[key]; ok {
		entry.response = response
		entry.touchedAt = c.now()
		return
	}
	if c.maxEntries > 0 && len(c.entries) >= c.maxEntries {
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
	c.entries[key] = &responseEntry{response: response, touchedAt: c.now()}
}

func (c *responseCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// purgeExpired removes every expired entry, returning the count.
func (c *responseCache) purgeExpired() int {
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
