// Package cache provides a TTL query cache with FIFO eviction and
// targeted invalidation by query text, repository, or language.
package cache

import (
	"strings"
	"sync"
	"time"
)

// Defaults applied when the configured values are unusable.
const (
	DefaultTTL      = 5 * time.Minute
	DefaultCapacity = 256
)

type entry[V any] struct {
	value    V
	storedAt time.Time

	// Retained for targeted invalidation.
	query      string
	repository string
	language   string
}

// Cache is a bounded TTL cache keyed by canonical search parameters.
// Expired entries are served as misses and reaped opportunistically on
// writes; when the cache is full the oldest entry by insertion order is
// evicted. All operations are in-memory, so the single mutex is never
// held across I/O.
type Cache[V any] struct {
	mu       sync.Mutex
	entries  map[string]*entry[V]
	order    []string
	ttl      time.Duration
	capacity int

	hits   uint64
	misses uint64

	now func() time.Time
}

// Stats is a point-in-time snapshot of cache occupancy.
type Stats struct {
	Total    int    `json:"total_entries"`
	Active   int    `json:"active_entries"`
	Expired  int    `json:"expired_entries"`
	Capacity int    `json:"capacity"`
	TTL      string `json:"ttl"`
	Hits     uint64 `json:"hits"`
	Misses   uint64 `json:"misses"`
}

// InvalidateOptions selects entries to remove. Set fields combine with
// AND; an all-empty options value matches nothing.
type InvalidateOptions struct {
	// QuerySubstring matches entries whose query text contains the
	// substring, case-insensitive.
	QuerySubstring string

	// Repository matches entries scoped to the exact repository.
	Repository string

	// Language matches entries scoped to the exact language.
	Language string
}

func (o InvalidateOptions) empty() bool {
	return o.QuerySubstring == "" && o.Repository == "" && o.Language == ""
}

// New creates a cache with the given TTL and capacity.
func New[V any](ttl time.Duration, capacity int) *Cache[V] {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Cache[V]{
		entries:  make(map[string]*entry[V]),
		ttl:      ttl,
		capacity: capacity,
		now:      time.Now,
	}
}

// Get returns the cached value for the key. An expired entry is a miss;
// it stays in place until the next write sweeps it.
func (c *Cache[V]) Get(key Key) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	e, ok := c.entries[key.Hash()]
	if !ok {
		c.misses++
		return zero, false
	}
	if c.now().Sub(e.storedAt) > c.ttl {
		c.misses++
		return zero, false
	}
	c.hits++
	return e.value, true
}

// Put stores a value. Expired entries are swept first; if the cache is
// still full, the oldest insertion is evicted.
func (c *Cache[V]) Put(key Key, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	hash := key.Hash()

	if _, ok := c.entries[hash]; ok {
		c.removeFromOrder(hash)
	}

	c.sweepLocked()

	for len(c.entries) >= c.capacity && len(c.order) > 0 {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}

	c.entries[hash] = &entry[V]{
		value:      value,
		storedAt:   c.now(),
		query:      key.Query,
		repository: key.Repository,
		language:   key.Language,
	}
	c.order = append(c.order, hash)
}

// Invalidate removes entries matching the options and returns how many
// were removed.
func (c *Cache[V]) Invalidate(opts InvalidateOptions) int {
	if opts.empty() {
		return 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	needle := strings.ToLower(opts.QuerySubstring)

	removed := 0
	for hash, e := range c.entries {
		if opts.QuerySubstring != "" && !strings.Contains(strings.ToLower(e.query), needle) {
			continue
		}
		if opts.Repository != "" && e.repository != opts.Repository {
			continue
		}
		if opts.Language != "" && e.language != opts.Language {
			continue
		}
		delete(c.entries, hash)
		c.removeFromOrder(hash)
		removed++
	}
	return removed
}

// Clear removes every entry and returns how many were removed.
func (c *Cache[V]) Clear() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := len(c.entries)
	c.entries = make(map[string]*entry[V])
	c.order = c.order[:0]
	return removed
}

// Stats reports occupancy without mutating the cache.
func (c *Cache[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	expired := 0
	for _, e := range c.entries {
		if now.Sub(e.storedAt) > c.ttl {
			expired++
		}
	}

	return Stats{
		Total:    len(c.entries),
		Active:   len(c.entries) - expired,
		Expired:  expired,
		Capacity: c.capacity,
		TTL:      c.ttl.String(),
		Hits:     c.hits,
		Misses:   c.misses,
	}
}

// sweepLocked drops expired entries. Caller holds the mutex.
func (c *Cache[V]) sweepLocked() {
	now := c.now()
	for hash, e := range c.entries {
		if now.Sub(e.storedAt) > c.ttl {
			delete(c.entries, hash)
			c.removeFromOrder(hash)
		}
	}
}

func (c *Cache[V]) removeFromOrder(hash string) {
	for i, h := range c.order {
		if h == hash {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}
