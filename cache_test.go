package vpathfs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBrowseCache(ttl time.Duration, max int) (*browseCache, *testClock) {
	clock := newTestClock()
	c := newBrowseCache(BrowseCacheConfig{TTL: ttl, MaxEntries: max})
	c.now = clock.Now
	return c, clock
}

func shareEntries(names ...string) []DirEntry {
	out := make([]DirEntry, len(names))
	for i, n := range names {
		out[i] = DirEntry{Name: n, Attributes: AttrExists | AttrDirectory | AttrShare}
	}
	return out
}

func TestBrowseCache_GetPut(t *testing.T) {
	c, _ := newTestBrowseCache(time.Minute, 10)

	_, ok := c.get("FILESRV")
	assert.False(t, ok, "empty cache")

	c.put("filesrv", shareEntries("DATA", "IPC$"))
	got, ok := c.get("FILESRV")
	require.True(t, ok, "server names are case-insensitive")
	assert.Equal(t, shareEntries("DATA", "IPC$"), got)

	// Callers get a copy
	got[0].Name = "CHANGED"
	again, _ := c.get("FILESRV")
	assert.Equal(t, "DATA", again[0].Name)
}

func TestBrowseCache_TTL(t *testing.T) {
	c, clock := newTestBrowseCache(time.Minute, 10)
	c.put("SRV", shareEntries("A"))

	clock.Advance(time.Minute)
	_, ok := c.get("SRV")
	assert.True(t, ok, "entry is served up to its TTL")

	clock.Advance(time.Millisecond)
	_, ok = c.get("SRV")
	assert.False(t, ok, "entry expired")
	assert.Equal(t, 0, c.Stats().Entries)
}

func TestBrowseCache_Invalidate(t *testing.T) {
	c, _ := newTestBrowseCache(time.Minute, 10)
	c.put("A", shareEntries("S1"))
	c.put("B", shareEntries("S2"))

	c.invalidate("a")
	_, ok := c.get("A")
	assert.False(t, ok)
	_, ok = c.get("B")
	assert.True(t, ok)

	c.invalidateAll()
	_, ok = c.get("B")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Stats().Entries)
}

func TestBrowseCache_Eviction(t *testing.T) {
	c, _ := newTestBrowseCache(time.Minute, 2)
	c.put("A", shareEntries("1"))
	c.put("B", shareEntries("2"))

	// Touch A so B becomes the least recently used
	_, ok := c.get("A")
	require.True(t, ok)
	c.put("C", shareEntries("3"))

	_, ok = c.get("B")
	assert.False(t, ok, "B should have been evicted")
	_, ok = c.get("A")
	assert.True(t, ok)
	_, ok = c.get("C")
	assert.True(t, ok)
	assert.Equal(t, 2, c.Stats().Entries)
}

func TestBrowseCache_Disabled(t *testing.T) {
	c, _ := newTestBrowseCache(0, 10)
	c.put("A", shareEntries("1"))

	_, ok := c.get("A")
	assert.False(t, ok)
	assert.Equal(t, BrowseCacheStats{Enabled: false, Entries: 0, MaxEntries: 10}, c.Stats())
}

func TestDefaultBrowseCacheConfig(t *testing.T) {
	config := DefaultBrowseCacheConfig()
	if config.TTL != 30*time.Second {
		t.Errorf("TTL = %v, want 30s", config.TTL)
	}
	if config.MaxEntries != 256 {
		t.Errorf("MaxEntries = %d, want 256", config.MaxEntries)
	}

	c := newBrowseCache(BrowseCacheConfig{TTL: time.Second})
	assert.Equal(t, 256, c.Stats().MaxEntries)
}
