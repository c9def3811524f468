package mcp

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCapabilityCache_SetAndGet(t *testing.T) {
	cache := NewCapabilityCache(time.Minute)

	cache.Set("files", CapabilitySet{Tools: []Tool{{Name: "read_file"}}})

	set, ok := cache.Get("files")
	require.True(t, ok)
	assert.Len(t, set.Tools, 1)
	assert.Equal(t, "read_file", set.Tools[0].Name)
}

func TestCapabilityCache_TTLExpiry(t *testing.T) {
	cache := NewCapabilityCache(30 * time.Millisecond)
	cache.Set("files", CapabilitySet{Tools: []Tool{{Name: "read_file"}}})

	_, ok := cache.Get("files")
	assert.True(t, ok)

	time.Sleep(40 * time.Millisecond)
	_, ok = cache.Get("files")
	assert.False(t, ok)
}

func TestCapabilityCache_Invalidate(t *testing.T) {
	cache := NewCapabilityCache(time.Minute)
	cache.Set("files", CapabilitySet{})
	cache.Invalidate("files")

	_, ok := cache.Get("files")
	assert.False(t, ok)
}

func TestResourceCache_SetAndGet(t *testing.T) {
	cache := NewResourceCache(1024)

	cache.Set("file:///a.md", []byte("content-a"))

	got, ok := cache.Get("file:///a.md")
	require.True(t, ok)
	assert.Equal(t, []byte("content-a"), got)
	assert.Equal(t, len("content-a"), cache.Bytes())
}

func TestResourceCache_EvictsOldestWhenOverBudget(t *testing.T) {
	cache := NewResourceCache(30)

	cache.Set("a", make([]byte, 10))
	time.Sleep(2 * time.Millisecond)
	cache.Set("b", make([]byte, 10))
	time.Sleep(2 * time.Millisecond)
	cache.Set("c", make([]byte, 10))

	// Touch "a" so it is no longer the LRU entry.
	_, ok := cache.Get("a")
	require.True(t, ok)
	time.Sleep(2 * time.Millisecond)

	// Inserting 10 more bytes must evict "b", the oldest untouched entry.
	cache.Set("d", make([]byte, 10))

	_, ok = cache.Get("b")
	assert.False(t, ok, "expected b to be evicted")
	_, ok = cache.Get("a")
	assert.True(t, ok)
	_, ok = cache.Get("c")
	assert.True(t, ok)
	_, ok = cache.Get("d")
	assert.True(t, ok)
	assert.LessOrEqual(t, cache.Bytes(), 30)
}

func TestResourceCache_OversizedContentNotCached(t *testing.T) {
	cache := NewResourceCache(10)
	cache.Set("big", make([]byte, 11))

	_, ok := cache.Get("big")
	assert.False(t, ok)
	assert.Equal(t, 0, cache.Len())
}

func TestResourceCache_OverwriteAdjustsBytes(t *testing.T) {
	cache := NewResourceCache(100)
	cache.Set("a", make([]byte, 40))
	cache.Set("a", make([]byte, 10))

	assert.Equal(t, 10, cache.Bytes())
	assert.Equal(t, 1, cache.Len())
}

func TestMetrics_RollingAverage(t *testing.T) {
	m := &Metrics{}
	m.Record(10*time.Millisecond, nil)
	m.Record(30*time.Millisecond, nil)
	m.Record(20*time.Millisecond, fmt.Errorf("boom"))

	snap := m.Snapshot()
	assert.Equal(t, int64(3), snap.TotalRequests)
	assert.Equal(t, int64(2), snap.SuccessCount)
	assert.Equal(t, int64(1), snap.FailureCount)
	assert.InDelta(t, 20.0, snap.AvgLatencyMs, 0.001)
	assert.False(t, snap.LastRequestAt.IsZero())
}
