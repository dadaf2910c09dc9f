package pv

import (
	"fmt"
	"sync"

	xxhash "github.com/cespare/xxhash/v2"

	"pv-go/internal/model"
)

// DefaultCacheCapacity bounds the decision cache.
const DefaultCacheCapacity = 10000

// DefaultCachePrefixBytes is how much of the content participates in the
// cache key, so large files are not fully hashed on every lookup.
const DefaultCachePrefixBytes = 4096

// DecisionCache memoizes filter results keyed by (path, content prefix).
// Entries are pure functions of the key, so concurrent misses that both
// compute and both write are harmless: last write wins with an identical
// value. On reaching capacity the whole cache is cleared rather than
// evicting entries one by one.
type DecisionCache struct {
	mu          sync.Mutex
	entries     map[string]*model.FilterResult
	capacity    int
	prefixBytes int
}

// NewDecisionCache creates a cache. Zero or negative arguments select the
// defaults.
func NewDecisionCache(capacity, prefixBytes int) *DecisionCache {
	if capacity <= 0 {
		capacity = DefaultCacheCapacity
	}
	if prefixBytes <= 0 {
		prefixBytes = DefaultCachePrefixBytes
	}
	return &DecisionCache{
		entries:     make(map[string]*model.FilterResult),
		capacity:    capacity,
		prefixBytes: prefixBytes,
	}
}

// Key derives the cache key for a path and content.
func (c *DecisionCache) Key(path, content string) string {
	prefix := content
	if len(prefix) > c.prefixBytes {
		prefix = prefix[:c.prefixBytes]
	}
	return fmt.Sprintf("%s\x00%016x", path, xxhash.Sum64String(prefix))
}

// Get returns the cached result for key, if present.
func (c *DecisionCache) Get(key string) (*model.FilterResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	result, ok := c.entries[key]
	return result, ok
}

// Put stores a result. If the cache is full it is cleared first.
func (c *DecisionCache) Put(key string, result *model.FilterResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.entries) >= c.capacity {
		c.entries = make(map[string]*model.FilterResult)
	}
	c.entries[key] = result
}

// Clear drops every entry. Called whenever rules, overrides or preferences
// change so stale decisions are never served.
func (c *DecisionCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*model.FilterResult)
}

// Len returns the current number of entries.
func (c *DecisionCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
