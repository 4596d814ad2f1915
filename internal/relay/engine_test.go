package relay

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/searchrelay/searchrelay/internal/backend"
	"github.com/searchrelay/searchrelay/internal/cache"
	"github.com/searchrelay/searchrelay/internal/config"
	relayerrors "github.com/searchrelay/searchrelay/internal/errors"
	"github.com/searchrelay/searchrelay/internal/query"
	"github.com/searchrelay/searchrelay/internal/telemetry"
)

// mockBackend lets each test script the backend's behavior.
type mockBackend struct {
	searchFn  func(ctx context.Context, req backend.SearchRequest) ([]backend.Hit, error)
	exactFn   func(ctx context.Context, req backend.ExactRequest) ([]backend.Hit, error)
	featsFn   func(ctx context.Context, queryText string, ids []string) (map[string]backend.FeatureSet, error)
	searches  atomic.Int64
	exacts    atomic.Int64
}

func (m *mockBackend) Search(ctx context.Context, req backend.SearchRequest) ([]backend.Hit, error) {
	m.searches.Add(1)
	if m.searchFn == nil {
		return []backend.Hit{}, nil
	}
	return m.searchFn(ctx, req)
}

func (m *mockBackend) LookupExact(ctx context.Context, req backend.ExactRequest) ([]backend.Hit, error) {
	m.exacts.Add(1)
	if m.exactFn == nil {
		return nil, backend.ErrExactUnsupported
	}
	return m.exactFn(ctx, req)
}

func (m *mockBackend) DetailedFeatures(ctx context.Context, queryText string, ids []string) (map[string]backend.FeatureSet, error) {
	if m.featsFn == nil {
		return nil, backend.ErrFeaturesUnavailable
	}
	return m.featsFn(ctx, queryText, ids)
}

func (m *mockBackend) SchemaFields() []string {
	return []string{"repo", "path", "language", "content", "symbol_name", "signature", "deps"}
}

func (m *mockBackend) Available(ctx context.Context) bool { return true }
func (m *mockBackend) Close() error                       { return nil }

func hit(id, path, content string, score float64) backend.Hit {
	return backend.Hit{
		ID:    id,
		Score: score,
		Fields: map[string]any{
			"repo":     "core",
			"path":     path,
			"language": "go",
			"content":  content,
		},
	}
}

func newTestEngine(t *testing.T, be backend.Backend) *Engine {
	t.Helper()
	cfg := config.NewConfig()
	cfg.Search.RequestTimeout = 2 * time.Second
	return New(cfg, be, nil, nil)
}

func TestSearchCodeValidation(t *testing.T) {
	e := newTestEngine(t, &mockBackend{})
	ctx := context.Background()

	tests := []struct {
		name     string
		q        query.SearchQuery
		wantCode string
	}{
		{"empty query", query.SearchQuery{}, relayerrors.ErrCodeQueryEmpty},
		{"limit too high", query.SearchQuery{Query: "x", MaxResults: 99}, relayerrors.ErrCodeInvalidLimit},
		{"unknown intent", query.SearchQuery{Query: "x", Intent: "browse"}, relayerrors.ErrCodeInvalidIntent},
		{"unknown dependency mode", query.SearchQuery{Query: "x", DependencyMode: "maybe"}, relayerrors.ErrCodeInvalidDepMode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.SearchCode(ctx, tt.q)
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, relayerrors.GetCode(err))
		})
	}
}

func TestSearchCodeMissThenHit(t *testing.T) {
	be := &mockBackend{
		searchFn: func(ctx context.Context, req backend.SearchRequest) ([]backend.Hit, error) {
			if req.WantVectors {
				return []backend.Hit{hit("d1", "a.go", "alpha content", 0.9)}, nil
			}
			return []backend.Hit{
				hit("d1", "a.go", "alpha content", 12),
				hit("d2", "b.go", "beta content", 7),
			}, nil
		},
	}
	e := newTestEngine(t, be)
	q := query.SearchQuery{Query: "alpha beta"}

	resp, err := e.SearchCode(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, CacheMiss, resp.CacheStatus)
	require.Len(t, resp.Results, 2)

	// Canonical names resolved from the backend's schema.
	assert.Equal(t, "a.go", resp.Results[0].FilePath)
	assert.Equal(t, "core", resp.Results[0].Repository)
	assert.Equal(t, "d1", resp.Results[0].ID)
	assert.Contains(t, resp.Timings, "total")

	callsBefore := be.searches.Load()
	resp2, err := e.SearchCode(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, CacheHit, resp2.CacheStatus)
	assert.Equal(t, resp.Results, resp2.Results)
	assert.Equal(t, callsBefore, be.searches.Load(), "cache hit must not touch the backend")
}

func TestSearchCodeNoCacheBypasses(t *testing.T) {
	be := &mockBackend{
		searchFn: func(ctx context.Context, req backend.SearchRequest) ([]backend.Hit, error) {
			return []backend.Hit{hit("d1", "a.go", "content", 1)}, nil
		},
	}
	e := newTestEngine(t, be)
	q := query.SearchQuery{Query: "alpha", NoCache: true}

	resp, err := e.SearchCode(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, CacheBypass, resp.CacheStatus)

	resp2, err := e.SearchCode(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, CacheBypass, resp2.CacheStatus)
	assert.Zero(t, e.CacheStats().Total)
}

func TestSearchCodeExactTermsUseNativePredicate(t *testing.T) {
	var gotTerms []string
	be := &mockBackend{
		exactFn: func(ctx context.Context, req backend.ExactRequest) ([]backend.Hit, error) {
			gotTerms = req.Terms
			return []backend.Hit{hit("d1", "a.go", `calls parse_json("x")`, 3)}, nil
		},
	}
	e := newTestEngine(t, be)

	resp, err := e.SearchCode(context.Background(), query.SearchQuery{
		Query:       `find "parse_json" usage`,
		LexicalOnly: true,
	})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, []string{"parse_json"}, gotTerms)
}

func TestSearchCodeExactUnsupportedFallsBackToAppendedQuery(t *testing.T) {
	var lexicalQuery string
	be := &mockBackend{
		searchFn: func(ctx context.Context, req backend.SearchRequest) ([]backend.Hit, error) {
			if !req.WantVectors {
				lexicalQuery = req.Query
			}
			return []backend.Hit{}, nil
		},
	}
	e := newTestEngine(t, be)

	_, err := e.SearchCode(context.Background(), query.SearchQuery{
		Query:       `find "parse_json" usage`,
		LexicalOnly: true,
	})
	require.NoError(t, err)
	assert.Contains(t, lexicalQuery, "parse_json")
	assert.True(t, strings.HasPrefix(lexicalQuery, `find "parse_json" usage`))
}

func TestSearchCodeVectorFailureDegrades(t *testing.T) {
	be := &mockBackend{
		searchFn: func(ctx context.Context, req backend.SearchRequest) ([]backend.Hit, error) {
			if req.WantVectors {
				return nil, errors.New("vector index offline")
			}
			return []backend.Hit{hit("d1", "a.go", "content", 2)}, nil
		},
	}
	e := newTestEngine(t, be)

	resp, err := e.SearchCode(context.Background(), query.SearchQuery{Query: "alpha"})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Contains(t, resp.Diagnostic, "vector channel unavailable")
}

func TestSearchCodeLexicalFailureIsBackendError(t *testing.T) {
	be := &mockBackend{
		searchFn: func(ctx context.Context, req backend.SearchRequest) ([]backend.Hit, error) {
			return nil, errors.New("connection refused")
		},
	}
	e := newTestEngine(t, be)

	_, err := e.SearchCode(context.Background(), query.SearchQuery{Query: "alpha", LexicalOnly: true})
	require.Error(t, err)
	assert.Equal(t, relayerrors.ErrCodeBackendUnavailable, relayerrors.GetCode(err))
	assert.True(t, relayerrors.IsRetryable(err))
}

func TestSearchCodeTimeoutReturnsEmptyWithDiagnostic(t *testing.T) {
	be := &mockBackend{
		searchFn: func(ctx context.Context, req backend.SearchRequest) ([]backend.Hit, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	cfg := config.NewConfig()
	cfg.Search.RequestTimeout = 10 * time.Millisecond
	e := New(cfg, be, nil, nil)

	resp, err := e.SearchCode(context.Background(), query.SearchQuery{Query: "alpha", LexicalOnly: true})
	require.NoError(t, err)
	assert.Empty(t, resp.Results)
	assert.Contains(t, resp.Diagnostic, relayerrors.ErrCodeBackendTimeout)
}

func TestSearchCodeMaxResultsTruncates(t *testing.T) {
	be := &mockBackend{
		searchFn: func(ctx context.Context, req backend.SearchRequest) ([]backend.Hit, error) {
			var hits []backend.Hit
			for i := 0; i < req.TopK; i++ {
				hits = append(hits, hit(
					"d"+string(rune('a'+i)), "f.go", "content", float64(req.TopK-i)))
			}
			return hits, nil
		},
	}
	e := newTestEngine(t, be)

	resp, err := e.SearchCode(context.Background(), query.SearchQuery{
		Query:       "alpha",
		MaxResults:  3,
		LexicalOnly: true,
	})
	require.NoError(t, err)
	assert.Len(t, resp.Results, 3)
}

func TestSearchCodeDependencyExpansion(t *testing.T) {
	be := &mockBackend{
		searchFn: func(ctx context.Context, req backend.SearchRequest) ([]backend.Hit, error) {
			h := hit("d1", "a.go", "func alpha() { helper() }", 5)
			h.Fields["symbol_name"] = "alpha"
			h.Fields["deps"] = []any{"helper"}
			return []backend.Hit{h}, nil
		},
		exactFn: func(ctx context.Context, req backend.ExactRequest) ([]backend.Hit, error) {
			h := hit("d2", "helper.go", "func helper() {}", 4)
			h.Fields["symbol_name"] = "helper"
			return []backend.Hit{h}, nil
		},
	}
	e := newTestEngine(t, be)

	resp, err := e.SearchCode(context.Background(), query.SearchQuery{
		Query:          "alpha behavior",
		Intent:         query.IntentUnderstand,
		DependencyMode: query.DepAuto,
		LexicalOnly:    true,
	})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)

	g := resp.Results[0].DependencyGraph
	require.NotNil(t, g)
	require.Len(t, g.Nodes, 2)
	assert.Equal(t, "a.go#alpha", g.Nodes[0].ID)
	assert.Equal(t, "helper.go#helper", g.Nodes[1].ID)
	require.Len(t, g.Edges, 1)
	assert.Equal(t, "calls", g.Edges[0].Relation)
}

func TestSearchCodeExpandedResultsAboveThresholdNotCached(t *testing.T) {
	be := &mockBackend{
		searchFn: func(ctx context.Context, req backend.SearchRequest) ([]backend.Hit, error) {
			var hits []backend.Hit
			for i := 0; i < 10; i++ {
				hits = append(hits, hit("d"+string(rune('a'+i)), "f.go", "content", float64(20-i)))
			}
			return hits, nil
		},
		exactFn: func(ctx context.Context, req backend.ExactRequest) ([]backend.Hit, error) {
			return []backend.Hit{}, nil
		},
	}
	e := newTestEngine(t, be)

	q := query.SearchQuery{
		Query:          "alpha",
		MaxResults:     10,
		DependencyMode: query.DepAlways,
		LexicalOnly:    true,
	}
	resp, err := e.SearchCode(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, resp.Results, 10)

	// 10 results > default threshold of 5: skip caching.
	assert.Zero(t, e.CacheStats().Total)
}

func TestCacheAdminOperations(t *testing.T) {
	be := &mockBackend{
		searchFn: func(ctx context.Context, req backend.SearchRequest) ([]backend.Hit, error) {
			return []backend.Hit{hit("d1", "a.go", "content", 1)}, nil
		},
	}
	e := newTestEngine(t, be)
	ctx := context.Background()

	_, err := e.SearchCode(ctx, query.SearchQuery{Query: "parse json", LexicalOnly: true})
	require.NoError(t, err)
	_, err = e.SearchCode(ctx, query.SearchQuery{Query: "tcp dial", LexicalOnly: true})
	require.NoError(t, err)

	stats := e.CacheStats()
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 2, stats.Active)

	removed := e.CacheInvalidate(cache.InvalidateOptions{QuerySubstring: "JSON"})
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, e.CacheStats().Total)

	assert.Equal(t, 1, e.CacheClear())
	assert.Zero(t, e.CacheStats().Total)
}

func TestExplainRankingFallsBackPerResult(t *testing.T) {
	be := &mockBackend{
		searchFn: func(ctx context.Context, req backend.SearchRequest) ([]backend.Hit, error) {
			return []backend.Hit{
				hit("d1", "a.go", "alpha", 3),
				hit("d2", "b.go", "beta", 2),
			}, nil
		},
		featsFn: func(ctx context.Context, queryText string, ids []string) (map[string]backend.FeatureSet, error) {
			return nil, errors.New("diagnostics api removed")
		},
	}
	e := newTestEngine(t, be)

	exps, err := e.ExplainRanking(context.Background(), query.SearchQuery{Query: "alpha", LexicalOnly: true}, "auto")
	require.NoError(t, err)
	require.Len(t, exps, 2)
	for _, exp := range exps {
		assert.Equal(t, "heuristic", exp.Mode)

		found := false
		for _, f := range exp.Factors {
			if f.Name == "base_score" {
				found = true
			}
		}
		assert.True(t, found, "every explanation carries base_score")
	}
}

func TestReloadConfigClearsCacheAndApplies(t *testing.T) {
	be := &mockBackend{
		searchFn: func(ctx context.Context, req backend.SearchRequest) ([]backend.Hit, error) {
			return []backend.Hit{hit("d1", "a.go", "content", 1)}, nil
		},
	}
	e := newTestEngine(t, be)

	_, err := e.SearchCode(context.Background(), query.SearchQuery{Query: "alpha", LexicalOnly: true})
	require.NoError(t, err)
	require.Equal(t, 1, e.CacheStats().Total)

	cfg := config.NewConfig()
	cfg.Search.BM25Weight = 0.9
	cfg.Search.VectorWeight = 0.1
	e.ReloadConfig(cfg)

	assert.Zero(t, e.CacheStats().Total)
	_, fuser, _ := e.snapshot()
	assert.Equal(t, 0.9, fuser.BM25Weight)
}

func TestStatusProbesCapabilities(t *testing.T) {
	be := &mockBackend{
		exactFn: func(ctx context.Context, req backend.ExactRequest) ([]backend.Hit, error) {
			return []backend.Hit{}, nil
		},
	}
	e := newTestEngine(t, be)

	status := e.Status(context.Background())
	assert.True(t, status.Available)
	assert.True(t, status.SchemaValid)
	assert.True(t, status.ExactLookup)
	assert.False(t, status.HasDiagnostics)
}

func TestSearchCodeRecordsTelemetry(t *testing.T) {
	be := &mockBackend{
		searchFn: func(ctx context.Context, req backend.SearchRequest) ([]backend.Hit, error) {
			return []backend.Hit{}, nil
		},
	}
	cfg := config.NewConfig()
	collector := telemetry.NewCollector(nil)
	e := New(cfg, be, collector, nil)

	_, err := e.SearchCode(context.Background(), query.SearchQuery{
		Query:       "missing symbol",
		Intent:      query.IntentDebug,
		LexicalOnly: true,
	})
	require.NoError(t, err)

	snap := collector.Snapshot()
	assert.Equal(t, int64(1), snap.TotalQueries)
	assert.Equal(t, int64(1), snap.IntentCounts["debug"])
	assert.Equal(t, int64(1), snap.ZeroResultCount)
}
