package relay

import (
	"context"
	"errors"

	"github.com/searchrelay/searchrelay/internal/backend"
	"github.com/searchrelay/searchrelay/internal/cache"
	"github.com/searchrelay/searchrelay/internal/config"
	relayerrors "github.com/searchrelay/searchrelay/internal/errors"
	"github.com/searchrelay/searchrelay/internal/query"
	"github.com/searchrelay/searchrelay/internal/rank"
	"github.com/searchrelay/searchrelay/internal/telemetry"
)

// ExplainRanking retrieves fresh results for the query and explains each
// one. The cache is never consulted: explanations must reflect what the
// backend returns now, not a cached ordering.
func (e *Engine) ExplainRanking(ctx context.Context, q query.SearchQuery, mode string) ([]rank.Explanation, error) {
	cfg, fuser, timeout := e.snapshot()

	q = q.WithDefaults(cfg.Search.DefaultMaxResults)
	if err := q.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	terms := query.MergeExactTerms(q.ExactTerms, query.ExtractExactTerms(q.Query))
	lexical, vector, _, err := e.retrieve(ctx, q, terms, cfg.Search.OverfetchFactor)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, relayerrors.Timeout("explain request deadline exceeded", err)
		}
		return nil, err
	}

	fused := fuser.Fuse(lexical, vector)
	if len(fused) > q.MaxResults {
		fused = fused[:q.MaxResults]
	}

	return e.explainer.Explain(ctx, q.Query, fused, mode), nil
}

// CacheStats reports cache occupancy.
func (e *Engine) CacheStats() cache.Stats {
	return e.cache.Stats()
}

// CacheInvalidate removes entries matching the options and returns the
// count removed.
func (e *Engine) CacheInvalidate(opts cache.InvalidateOptions) int {
	removed := e.cache.Invalidate(opts)
	e.logger.Info("cache invalidated", "removed", removed,
		"pattern", opts.QuerySubstring, "repository", opts.Repository, "language", opts.Language)
	return removed
}

// CacheClear empties the cache and returns the count removed.
func (e *Engine) CacheClear() int {
	removed := e.cache.Clear()
	e.logger.Info("cache cleared", "removed", removed)
	return removed
}

// Status probes the backend's availability and capabilities.
func (e *Engine) Status(ctx context.Context) BackendStatus {
	validation := e.mapper.ValidateRequired()

	status := BackendStatus{
		Available:     e.backend.Available(ctx),
		SchemaValid:   validation.Valid,
		MissingFields: validation.Missing,
		SchemaFields:  e.backend.SchemaFields(),
	}

	if _, err := e.backend.LookupExact(ctx, backend.ExactRequest{}); !errors.Is(err, backend.ErrExactUnsupported) {
		status.ExactLookup = true
	}
	if _, err := e.backend.DetailedFeatures(ctx, "", nil); !errors.Is(err, backend.ErrFeaturesUnavailable) {
		status.HasDiagnostics = true
	}
	return status
}

// ReloadConfig applies a new configuration. Search weights and timeouts
// take effect immediately; the cache is cleared because cached rankings
// were computed under the old parameters.
func (e *Engine) ReloadConfig(cfg *config.Config) {
	e.mu.Lock()
	e.cfg = cfg
	e.fuser = rank.NewFuser(cfg.Search.BM25Weight, cfg.Search.VectorWeight)
	e.timeout = cfg.Search.RequestTimeout
	e.mu.Unlock()

	removed := e.cache.Clear()
	e.logger.Info("configuration reloaded", "cache_entries_dropped", removed)
}

// Metrics exposes the telemetry collector, which may be nil.
func (e *Engine) Metrics() *telemetry.Collector {
	return e.metrics
}

// Close releases the backend.
func (e *Engine) Close() error {
	return e.backend.Close()
}
