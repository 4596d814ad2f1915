package mcp

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/searchrelay/searchrelay/internal/backend"
	"github.com/searchrelay/searchrelay/internal/config"
	"github.com/searchrelay/searchrelay/internal/relay"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	be, err := backend.NewEmbedded(backend.EmbeddedConfig{Dimensions: 64})
	require.NoError(t, err)
	t.Cleanup(func() { _ = be.Close() })

	err = be.IndexDocuments(context.Background(), []*backend.Document{
		{
			ID:           "doc-1",
			Repository:   "payments",
			FilePath:     "internal/billing/parser.go",
			Language:     "go",
			Content:      "func parseJSON(data []byte) (*Invoice, error) { return decodeInvoice(data) }",
			FunctionName: "parseJSON",
			Signature:    "func parseJSON(data []byte) (*Invoice, error)",
			StartLine:    12,
			EndLine:      18,
		},
		{
			ID:         "doc-2",
			Repository: "payments",
			FilePath:   "internal/billing/retry.go",
			Language:   "go",
			Content:    "func retryPolicy(attempts int) time.Duration { return backoff(attempts) }",
			StartLine:  4,
			EndLine:    9,
		},
		{
			ID:         "doc-3",
			Repository: "frontend",
			FilePath:   "src/api/client.py",
			Language:   "python",
			Content:    "def fetch_invoices(session): return session.get('/invoices')",
			StartLine:  1,
			EndLine:    3,
		},
	})
	require.NoError(t, err)

	cfg := config.NewConfig()
	cfg.Search.RequestTimeout = 5 * time.Second

	engine := relay.New(cfg, be, nil, slog.Default())
	t.Cleanup(func() { _ = engine.Close() })

	srv, err := NewServer(engine, slog.Default())
	require.NoError(t, err)
	return srv
}

func TestNewServer_RequiresEngine(t *testing.T) {
	srv, err := NewServer(nil, nil)

	assert.Nil(t, srv)
	assert.Error(t, err)
}

func TestSearchCodeHandler_ReturnsResults(t *testing.T) {
	srv := newTestServer(t)

	_, out, err := srv.searchCodeHandler(context.Background(), nil, SearchCodeInput{
		Query: "parse json invoice",
	})

	require.NoError(t, err)
	require.NotEmpty(t, out.Results)
	assert.Equal(t, "doc-1", out.Results[0].ID)
	assert.Equal(t, relay.CacheMiss, out.CacheStatus)
	assert.Contains(t, out.Timings, "total")
}

func TestSearchCodeHandler_SecondCallHitsCache(t *testing.T) {
	srv := newTestServer(t)
	input := SearchCodeInput{Query: "retry policy backoff"}

	_, first, err := srv.searchCodeHandler(context.Background(), nil, input)
	require.NoError(t, err)
	_, second, err := srv.searchCodeHandler(context.Background(), nil, input)
	require.NoError(t, err)

	assert.Equal(t, relay.CacheMiss, first.CacheStatus)
	assert.Equal(t, relay.CacheHit, second.CacheStatus)
}

func TestSearchCodeHandler_LanguageFilter(t *testing.T) {
	srv := newTestServer(t)

	_, out, err := srv.searchCodeHandler(context.Background(), nil, SearchCodeInput{
		Query:    "fetch invoices",
		Language: "python",
	})

	require.NoError(t, err)
	for _, r := range out.Results {
		assert.Equal(t, "python", r.Language)
	}
}

func TestSearchCodeHandler_EmptyQueryRejected(t *testing.T) {
	srv := newTestServer(t)

	_, _, err := srv.searchCodeHandler(context.Background(), nil, SearchCodeInput{Query: "  "})

	require.Error(t, err)
	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeInvalidParams, mcpErr.Code)
}

func TestSearchCodeHandler_InvalidIntentRejected(t *testing.T) {
	srv := newTestServer(t)

	_, _, err := srv.searchCodeHandler(context.Background(), nil, SearchCodeInput{
		Query:  "parse json",
		Intent: "dance",
	})

	require.Error(t, err)
	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeInvalidParams, mcpErr.Code)
}

func TestExplainRankingHandler(t *testing.T) {
	srv := newTestServer(t)

	_, out, err := srv.explainRankingHandler(context.Background(), nil, ExplainRankingInput{
		Query: "parse json invoice",
	})

	require.NoError(t, err)
	require.NotEmpty(t, out.Explanations)
	for _, ex := range out.Explanations {
		assert.NotEmpty(t, ex.Factors)
		assert.NotEmpty(t, ex.Summary)
	}
}

func TestExplainRankingHandler_UnknownModeRejected(t *testing.T) {
	srv := newTestServer(t)

	_, _, err := srv.explainRankingHandler(context.Background(), nil, ExplainRankingInput{
		Query: "parse json",
		Mode:  "psychic",
	})

	require.Error(t, err)
	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeInvalidParams, mcpErr.Code)
	assert.Contains(t, mcpErr.Message, "psychic")
}

func TestCacheHandlers(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	_, _, err := srv.searchCodeHandler(ctx, nil, SearchCodeInput{Query: "parse json invoice"})
	require.NoError(t, err)
	_, _, err = srv.searchCodeHandler(ctx, nil, SearchCodeInput{Query: "retry policy"})
	require.NoError(t, err)

	_, stats, err := srv.cacheStatsHandler(ctx, nil, emptyInput{})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Total)

	_, inv, err := srv.cacheInvalidateHandler(ctx, nil, CacheInvalidateInput{Pattern: "json"})
	require.NoError(t, err)
	assert.Equal(t, 1, inv.Removed)

	_, cleared, err := srv.cacheClearHandler(ctx, nil, emptyInput{})
	require.NoError(t, err)
	assert.Equal(t, 1, cleared.Removed)
	assert.Equal(t, 0, cleared.Remaining)
}

func TestCacheInvalidateHandler_RequiresSelector(t *testing.T) {
	srv := newTestServer(t)

	_, _, err := srv.cacheInvalidateHandler(context.Background(), nil, CacheInvalidateInput{})

	require.Error(t, err)
	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeInvalidParams, mcpErr.Code)
}

func TestBackendStatusHandler(t *testing.T) {
	srv := newTestServer(t)

	_, out, err := srv.backendStatusHandler(context.Background(), nil, emptyInput{})

	require.NoError(t, err)
	assert.True(t, out.Available)
	assert.True(t, out.ExactLookup)
	assert.True(t, out.HasDiagnostics)
}

func TestServe_UnknownTransport(t *testing.T) {
	srv := newTestServer(t)

	err := srv.Serve(context.Background(), "carrier-pigeon")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown transport")
}
