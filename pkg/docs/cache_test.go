package docs

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCache_SetAndGet(t *testing.T) {
	cache := NewCache(time.Minute)

	cache.Set("https://example.com/doc.md", Doc{URL: "https://example.com/doc.md", Content: "# Doc"})

	doc, ok := cache.Get("https://example.com/doc.md")
	assert.True(t, ok)
	assert.Equal(t, "# Doc", doc.Content)
}

func TestCache_Miss(t *testing.T) {
	cache := NewCache(time.Minute)

	_, ok := cache.Get("https://example.com/nonexistent.md")
	assert.False(t, ok)
}

func TestCache_TTLExpiry(t *testing.T) {
	cache := NewCache(50 * time.Millisecond)

	cache.Set("https://example.com/doc.md", Doc{Content: "content"})

	_, ok := cache.Get("https://example.com/doc.md")
	assert.True(t, ok)

	time.Sleep(60 * time.Millisecond)

	_, ok = cache.Get("https://example.com/doc.md")
	assert.False(t, ok)
}

func TestCache_Overwrite(t *testing.T) {
	cache := NewCache(time.Minute)

	cache.Set("url", Doc{Content: "old"})
	cache.Set("url", Doc{Content: "new", Truncated: true})

	doc, ok := cache.Get("url")
	assert.True(t, ok)
	assert.Equal(t, "new", doc.Content)
	assert.True(t, doc.Truncated)
}

func TestCache_ConcurrentAccess(t *testing.T) {
	cache := NewCache(time.Minute)
	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			cache.Set("shared-key", Doc{Content: "content"})
		}()
		go func() {
			defer wg.Done()
			cache.Get("shared-key")
		}()
	}
	wg.Wait()

	doc, ok := cache.Get("shared-key")
	assert.True(t, ok)
	assert.Equal(t, "content", doc.Content)
}
