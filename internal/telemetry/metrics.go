// Package telemetry collects local search telemetry. All data stays on
// disk next to the relay; nothing is reported externally.
package telemetry

import (
	"strings"
	"sync"
	"time"
)

// LatencyBucket is a latency histogram bucket.
type LatencyBucket string

const (
	BucketP10   LatencyBucket = "p10"   // <10ms
	BucketP50   LatencyBucket = "p50"   // 10-50ms
	BucketP100  LatencyBucket = "p100"  // 50-100ms
	BucketP500  LatencyBucket = "p500"  // 100-500ms
	BucketP1000 LatencyBucket = "p1000" // >=500ms
)

// LatencyToBucket converts a duration to its histogram bucket.
func LatencyToBucket(d time.Duration) LatencyBucket {
	ms := d.Milliseconds()
	switch {
	case ms < 10:
		return BucketP10
	case ms < 50:
		return BucketP50
	case ms < 100:
		return BucketP100
	case ms < 500:
		return BucketP500
	default:
		return BucketP1000
	}
}

// SearchEvent is one completed search request.
type SearchEvent struct {
	Query       string
	Intent      string
	CacheStatus string // "hit", "miss", "bypass"
	ResultCount int
	Latency     time.Duration
	Timestamp   time.Time
}

// IsZeroResult reports whether the search returned nothing.
func (e SearchEvent) IsZeroResult() bool {
	return e.ResultCount == 0
}

// CircularBuffer is a fixed-capacity FIFO buffer.
type CircularBuffer[T any] struct {
	mu       sync.RWMutex
	items    []T
	head     int
	size     int
	capacity int
}

// NewCircularBuffer creates a buffer with the given capacity.
func NewCircularBuffer[T any](capacity int) *CircularBuffer[T] {
	if capacity <= 0 {
		capacity = 100
	}
	return &CircularBuffer[T]{
		items:    make([]T, capacity),
		capacity: capacity,
	}
}

// Add appends an item, evicting the oldest when full.
func (b *CircularBuffer[T]) Add(item T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.items[b.head] = item
	b.head = (b.head + 1) % b.capacity
	if b.size < b.capacity {
		b.size++
	}
}

// Items returns the buffer contents oldest first.
func (b *CircularBuffer[T]) Items() []T {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.size == 0 {
		return []T{}
	}

	result := make([]T, b.size)
	if b.size < b.capacity {
		copy(result, b.items[:b.size])
	} else {
		copy(result, b.items[b.head:])
		copy(result[b.capacity-b.head:], b.items[:b.head])
	}
	return result
}

// Size returns the current number of items.
func (b *CircularBuffer[T]) Size() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

// ExtractTerms extracts trackable terms from a query: lowercased words
// of at least 3 characters.
func ExtractTerms(query string) []string {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return nil
	}

	var terms []string
	for _, w := range strings.Fields(query) {
		if len(w) >= 3 {
			terms = append(terms, w)
		}
	}
	return terms
}

// TermCount is a term and its frequency.
type TermCount struct {
	Term  string `json:"term"`
	Count int64  `json:"count"`
}

// Snapshot is an immutable view of collected metrics.
type Snapshot struct {
	IntentCounts        map[string]int64        `json:"intent_counts"`
	CacheStatusCounts   map[string]int64        `json:"cache_status_counts"`
	LatencyDistribution map[LatencyBucket]int64 `json:"latency_distribution"`
	ZeroResultQueries   []string                `json:"zero_result_queries"`
	TotalQueries        int64                   `json:"total_queries"`
	ZeroResultCount     int64                   `json:"zero_result_count"`
	Since               time.Time               `json:"since"`
}

// ZeroResultPercentage returns the share of zero-result queries.
func (s *Snapshot) ZeroResultPercentage() float64 {
	if s.TotalQueries == 0 {
		return 0
	}
	return float64(s.ZeroResultCount) / float64(s.TotalQueries) * 100
}

// Collector aggregates search events in memory and flushes them to a
// Store. Safe for concurrent use.
type Collector struct {
	mu sync.RWMutex

	intents     map[string]int64
	cacheStatus map[string]int64
	latency     map[LatencyBucket]int64
	terms       map[string]int64
	zeroResults *CircularBuffer[string]

	total      int64
	zeroResult int64
	since      time.Time

	store Store
}

// NewCollector creates a collector. The store may be nil, in which case
// Flush is a no-op and metrics live only in memory.
func NewCollector(store Store) *Collector {
	return &Collector{
		intents:     make(map[string]int64),
		cacheStatus: make(map[string]int64),
		latency:     make(map[LatencyBucket]int64),
		terms:       make(map[string]int64),
		zeroResults: NewCircularBuffer[string](100),
		since:       time.Now(),
		store:       store,
	}
}

// Record ingests one search event.
func (c *Collector) Record(event SearchEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.total++
	c.intents[event.Intent]++
	c.cacheStatus[event.CacheStatus]++
	c.latency[LatencyToBucket(event.Latency)]++

	for _, term := range ExtractTerms(event.Query) {
		c.terms[term]++
	}

	if event.IsZeroResult() {
		c.zeroResult++
		c.zeroResults.Add(event.Query)
	}
}

// Snapshot returns a copy of the current aggregates.
func (c *Collector) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return Snapshot{
		IntentCounts:        copyMap(c.intents),
		CacheStatusCounts:   copyMap(c.cacheStatus),
		LatencyDistribution: copyMap(c.latency),
		ZeroResultQueries:   c.zeroResults.Items(),
		TotalQueries:        c.total,
		ZeroResultCount:     c.zeroResult,
		Since:               c.since,
	}
}

// Flush persists the windowed aggregates and resets them. The
// zero-result buffer and totals are kept; they describe the process
// lifetime, not a flush window.
func (c *Collector) Flush(date string) error {
	if c.store == nil {
		return nil
	}

	c.mu.Lock()
	intents := c.intents
	latency := c.latency
	terms := c.terms
	c.intents = make(map[string]int64)
	c.latency = make(map[LatencyBucket]int64)
	c.terms = make(map[string]int64)
	c.mu.Unlock()

	if err := c.store.SaveIntentCounts(date, intents); err != nil {
		return err
	}
	if err := c.store.SaveLatencyCounts(date, latency); err != nil {
		return err
	}
	return c.store.UpsertTermCounts(terms)
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
