package metadata

import (
	"sync"

	"github.com/gwlsn/transcast/internal/media"
)

// Cache is the thread-safe insert-or-get mapping from source path to
// resolved Metadata. Entries are only inserted, never
// mutated, so a returned *media.Metadata is safe to read without the lock.
// Contention is coarse on purpose; the adapter behind it dominates latency.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*media.Metadata
}

// NewCache creates an empty Cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[string]*media.Metadata)}
}

// Get returns the cached entry for path, or nil.
func (c *Cache) Get(path string) *media.Metadata {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries[path]
}

// Insert stores meta for path if no entry exists yet and returns the entry
// that is now cached. A second insert for the same path keeps the first
// value (entries are monotonic within a run).
func (c *Cache) Insert(path string, meta *media.Metadata) *media.Metadata {
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.entries[path]; ok {
		return existing
	}
	c.entries[path] = meta
	return meta
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
