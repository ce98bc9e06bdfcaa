package vpathfs

import (
	"strings"
	"sync"
	"time"
)

// BrowseCacheConfig configures caching of network browse listings (the
// share names of a server).
type BrowseCacheConfig struct {
	// TTL is how long a share list is served without asking the server
	// again. Zero disables caching.
	TTL time.Duration `mapstructure:"ttl" validate:"gte=0"`

	// MaxEntries is the maximum number of cached servers. When exceeded,
	// the least recently used entries are evicted.
	MaxEntries int `mapstructure:"max_entries" validate:"gte=0"`
}

// DefaultBrowseCacheConfig returns a cache configuration with reasonable
// defaults.
func DefaultBrowseCacheConfig() BrowseCacheConfig {
	return BrowseCacheConfig{
		TTL:        30 * time.Second,
		MaxEntries: 256,
	}
}

// browseCache memoizes browse-level listings keyed by server.
type browseCache struct {
	mu          sync.Mutex
	config      BrowseCacheConfig
	entries     map[string]*browseCacheEntry
	accessOrder []string // LRU tracking
	now         func() time.Time
}

type browseCacheEntry struct {
	entries  []DirEntry
	cachedAt time.Time
}

// newBrowseCache creates a new browse cache with the given configuration.
func newBrowseCache(config BrowseCacheConfig) *browseCache {
	if config.MaxEntries == 0 {
		config.MaxEntries = DefaultBrowseCacheConfig().MaxEntries
	}

	return &browseCache{
		config:      config,
		entries:     make(map[string]*browseCacheEntry),
		accessOrder: make([]string, 0, config.MaxEntries),
		now:         time.Now,
	}
}

func (c *browseCache) enabled() bool {
	return c.config.TTL > 0
}

// get retrieves a cached listing if available and not expired.
func (c *browseCache) get(server string) ([]DirEntry, bool) {
	if !c.enabled() {
		return nil, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	key := strings.ToUpper(server)
	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}

	if c.now().Sub(entry.cachedAt) > c.config.TTL {
		delete(c.entries, key)
		c.forget(key)
		return nil, false
	}

	c.trackAccess(key)
	out := make([]DirEntry, len(entry.entries))
	copy(out, entry.entries)
	return out, true
}

// put stores a listing in the cache.
func (c *browseCache) put(server string, entries []DirEntry) {
	if !c.enabled() {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	key := strings.ToUpper(server)
	stored := make([]DirEntry, len(entries))
	copy(stored, entries)
	c.entries[key] = &browseCacheEntry{
		entries:  stored,
		cachedAt: c.now(),
	}

	c.trackAccess(key)
	c.evictIfNeeded()
}

// invalidate removes the listing for server.
func (c *browseCache) invalidate(server string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := strings.ToUpper(server)
	delete(c.entries, key)
	c.forget(key)
}

// invalidateAll clears all cache entries.
func (c *browseCache) invalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*browseCacheEntry)
	c.accessOrder = c.accessOrder[:0]
}

func (c *browseCache) forget(key string) {
	for i, k := range c.accessOrder {
		if k == key {
			c.accessOrder = append(c.accessOrder[:i], c.accessOrder[i+1:]...)
			return
		}
	}
}

// trackAccess moves key to the most recently used end.
func (c *browseCache) trackAccess(key string) {
	c.forget(key)
	c.accessOrder = append(c.accessOrder, key)
}

// evictIfNeeded evicts oldest entries if cache is full.
func (c *browseCache) evictIfNeeded() {
	for len(c.entries) > c.config.MaxEntries && len(c.accessOrder) > 0 {
		oldest := c.accessOrder[0]
		c.accessOrder = c.accessOrder[1:]
		delete(c.entries, oldest)
	}
}

// BrowseCacheStats provides statistics about cache usage.
type BrowseCacheStats struct {
	Enabled    bool
	Entries    int
	MaxEntries int
}

// Stats returns cache statistics.
func (c *browseCache) Stats() BrowseCacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return BrowseCacheStats{
		Enabled:    c.enabled(),
		Entries:    len(c.entries),
		MaxEntries: c.config.MaxEntries,
	}
}
