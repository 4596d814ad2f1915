package telemetry

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLatencyToBucket(t *testing.T) {
	tests := []struct {
		latency time.Duration
		want    LatencyBucket
	}{
		{5 * time.Millisecond, BucketP10},
		{10 * time.Millisecond, BucketP50},
		{49 * time.Millisecond, BucketP50},
		{75 * time.Millisecond, BucketP100},
		{250 * time.Millisecond, BucketP500},
		{500 * time.Millisecond, BucketP1000},
		{2 * time.Second, BucketP1000},
	}

	for _, tt := range tests {
		t.Run(tt.latency.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, LatencyToBucket(tt.latency))
		})
	}
}

func TestCircularBufferFIFO(t *testing.T) {
	b := NewCircularBuffer[int](3)

	for i := 1; i <= 5; i++ {
		b.Add(i)
	}

	assert.Equal(t, 3, b.Size())
	assert.Equal(t, []int{3, 4, 5}, b.Items())
}

func TestCircularBufferPartiallyFull(t *testing.T) {
	b := NewCircularBuffer[string](5)
	b.Add("a")
	b.Add("b")

	assert.Equal(t, []string{"a", "b"}, b.Items())
}

func TestCircularBufferEmpty(t *testing.T) {
	b := NewCircularBuffer[string](5)
	assert.Empty(t, b.Items())
	assert.Zero(t, b.Size())
}

func TestExtractTerms(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{"lowercases and filters short", "Fix DB in parser", []string{"fix", "parser"}},
		{"empty", "   ", nil},
		{"all short", "a b c", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractTerms(tt.query))
		})
	}
}

func TestCollectorRecordAndSnapshot(t *testing.T) {
	c := NewCollector(nil)

	c.Record(SearchEvent{
		Query:       "parse json config",
		Intent:      "implement",
		CacheStatus: "miss",
		ResultCount: 3,
		Latency:     20 * time.Millisecond,
	})
	c.Record(SearchEvent{
		Query:       "nonexistent symbol",
		Intent:      "debug",
		CacheStatus: "miss",
		ResultCount: 0,
		Latency:     5 * time.Millisecond,
	})
	c.Record(SearchEvent{
		Query:       "parse json config",
		Intent:      "implement",
		CacheStatus: "hit",
		ResultCount: 3,
		Latency:     time.Millisecond,
	})

	snap := c.Snapshot()
	assert.Equal(t, int64(3), snap.TotalQueries)
	assert.Equal(t, int64(2), snap.IntentCounts["implement"])
	assert.Equal(t, int64(1), snap.IntentCounts["debug"])
	assert.Equal(t, int64(2), snap.CacheStatusCounts["miss"])
	assert.Equal(t, int64(1), snap.CacheStatusCounts["hit"])
	assert.Equal(t, int64(1), snap.ZeroResultCount)
	assert.Equal(t, []string{"nonexistent symbol"}, snap.ZeroResultQueries)
	assert.Equal(t, int64(1), snap.LatencyDistribution[BucketP50])
	assert.Equal(t, int64(2), snap.LatencyDistribution[BucketP10])
	assert.InDelta(t, 100.0/3.0, snap.ZeroResultPercentage(), 0.01)
}

func TestCollectorFlushWithoutStore(t *testing.T) {
	c := NewCollector(nil)
	c.Record(SearchEvent{Query: "q", Intent: "implement"})
	assert.NoError(t, c.Flush("2026-08-30"))
}

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := OpenSQLiteStore(t.TempDir() + "/telemetry.db")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStoreIntentCounts(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.SaveIntentCounts("2026-08-29", map[string]int64{"implement": 5}))
	require.NoError(t, store.SaveIntentCounts("2026-08-30", map[string]int64{"implement": 3, "debug": 2}))
	// Same day again accumulates instead of replacing.
	require.NoError(t, store.SaveIntentCounts("2026-08-30", map[string]int64{"implement": 1}))

	counts, err := store.GetIntentCounts("2026-08-30", "2026-08-30")
	require.NoError(t, err)
	assert.Equal(t, int64(4), counts["implement"])
	assert.Equal(t, int64(2), counts["debug"])

	all, err := store.GetIntentCounts("2026-08-01", "2026-08-31")
	require.NoError(t, err)
	assert.Equal(t, int64(9), all["implement"])
}

func TestSQLiteStoreLatencyCounts(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.SaveLatencyCounts("2026-08-30", map[LatencyBucket]int64{
		BucketP10: 7,
		BucketP50: 2,
	}))

	counts, err := store.GetLatencyCounts("2026-08-30", "2026-08-30")
	require.NoError(t, err)
	assert.Equal(t, int64(7), counts[BucketP10])
	assert.Equal(t, int64(2), counts[BucketP50])
}

func TestSQLiteStoreTopTerms(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.UpsertTermCounts(map[string]int64{"json": 3, "parser": 5}))
	require.NoError(t, store.UpsertTermCounts(map[string]int64{"json": 4}))

	terms, err := store.GetTopTerms(2)
	require.NoError(t, err)
	require.Len(t, terms, 2)
	assert.Equal(t, TermCount{Term: "json", Count: 7}, terms[0])
	assert.Equal(t, TermCount{Term: "parser", Count: 5}, terms[1])
}

func TestSQLiteStoreZeroResultQueriesTrimmed(t *testing.T) {
	store := newTestStore(t)

	for i := 0; i < 105; i++ {
		require.NoError(t, store.AddZeroResultQuery(fmt.Sprintf("query-%d", i), time.Now()))
	}

	var count int
	require.NoError(t, store.db.QueryRow(`SELECT COUNT(*) FROM zero_result_queries`).Scan(&count))
	assert.Equal(t, 100, count)
}

func TestCollectorFlushPersists(t *testing.T) {
	store := newTestStore(t)
	c := NewCollector(store)

	c.Record(SearchEvent{
		Query:       "parse json",
		Intent:      "implement",
		CacheStatus: "miss",
		ResultCount: 2,
		Latency:     15 * time.Millisecond,
	})

	require.NoError(t, c.Flush("2026-08-30"))

	counts, err := store.GetIntentCounts("2026-08-30", "2026-08-30")
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts["implement"])

	terms, err := store.GetTopTerms(10)
	require.NoError(t, err)
	assert.Len(t, terms, 2)

	// Windowed aggregates reset after flush; lifetime totals survive.
	snap := c.Snapshot()
	assert.Empty(t, snap.IntentCounts)
	assert.Equal(t, int64(1), snap.TotalQueries)
}
