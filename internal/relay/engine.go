// Package relay implements the search middleware core: cached hybrid
// retrieval, exact-term handling, dependency expansion, and ranking
// explanations over a pluggable search backend.
package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/searchrelay/searchrelay/internal/backend"
	"github.com/searchrelay/searchrelay/internal/cache"
	"github.com/searchrelay/searchrelay/internal/config"
	relayerrors "github.com/searchrelay/searchrelay/internal/errors"
	"github.com/searchrelay/searchrelay/internal/graph"
	"github.com/searchrelay/searchrelay/internal/query"
	"github.com/searchrelay/searchrelay/internal/rank"
	"github.com/searchrelay/searchrelay/internal/schema"
	"github.com/searchrelay/searchrelay/internal/telemetry"
	"github.com/searchrelay/searchrelay/internal/timing"
)

const snippetMaxLen = 400

// Engine owns the shared state of the relay: the result cache, the field
// mapper, and the backend handle. One Engine serves all requests; per
// request state lives on the stack.
type Engine struct {
	mu      sync.RWMutex
	cfg     *config.Config
	fuser   *rank.Fuser
	timeout time.Duration

	backend   backend.Backend
	mapper    *schema.Mapper
	cache     *cache.Cache[[]SearchResult]
	explainer *rank.Explainer
	resolver  *graph.Resolver
	metrics   *telemetry.Collector
	logger    *slog.Logger
}

// New creates an engine over the given backend. The metrics collector
// may be nil.
func New(cfg *config.Config, be backend.Backend, metrics *telemetry.Collector, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}

	mapper := schema.NewMapper(be.SchemaFields())
	if v := mapper.ValidateRequired(); !v.Valid {
		// Degraded but serviceable: affected canonical fields resolve
		// to defaults.
		logger.Warn("backend schema is missing required fields", "missing", v.Missing)
	}

	e := &Engine{
		cfg:       cfg,
		fuser:     rank.NewFuser(cfg.Search.BM25Weight, cfg.Search.VectorWeight),
		timeout:   cfg.Search.RequestTimeout,
		backend:   be,
		mapper:    mapper,
		cache:     cache.New[[]SearchResult](cfg.Cache.TTL, cfg.Cache.Capacity),
		explainer: rank.NewExplainer(be, mapper, logger),
		metrics:   metrics,
		logger:    logger,
	}
	e.resolver = graph.NewResolver(be, mapper, graph.Config{
		MaxNodes:        cfg.Graph.MaxNodes,
		MaxDepth:        cfg.Graph.MaxDepth,
		LookupCacheSize: cfg.Graph.LookupCacheSize,
	}, logger)
	return e
}

// SearchCode runs one search request end to end: validation, cache
// lookup, exact-term extraction, parallel channel retrieval, fusion,
// optional dependency expansion, and cache store.
func (e *Engine) SearchCode(ctx context.Context, q query.SearchQuery) (*SearchResponse, error) {
	cfg, fuser, timeout := e.snapshot()

	q = q.WithDefaults(cfg.Search.DefaultMaxResults)
	if err := q.Validate(); err != nil {
		return nil, err
	}

	timer := timing.New()

	timer.Mark("extract")
	terms := query.MergeExactTerms(q.ExactTerms, query.ExtractExactTerms(q.Query))

	key := cacheKey(q, terms)
	cacheStatus := CacheBypass
	timer.Mark("cache_lookup")
	if !q.NoCache {
		if results, ok := e.cache.Get(key); ok {
			resp := &SearchResponse{
				Results:     results,
				CacheStatus: CacheHit,
				Timings:     timingsWithTotal(timer),
			}
			e.record(q, CacheHit, len(results), timer.Total())
			return resp, nil
		}
		cacheStatus = CacheMiss
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	timer.Mark("retrieve")
	lexical, vector, diagnostic, err := e.retrieve(ctx, q, terms, cfg.Search.OverfetchFactor)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			// Abort cleanly: empty results with a diagnostic, never a
			// partial set.
			e.logger.Warn("search timed out", "query", q.Query, "timeout", timeout)
			resp := &SearchResponse{
				Results:     []SearchResult{},
				CacheStatus: cacheStatus,
				Timings:     timingsWithTotal(timer),
				Diagnostic:  relayerrors.Timeout("request deadline exceeded", err).Error(),
			}
			e.record(q, cacheStatus, 0, timer.Total())
			return resp, nil
		}
		return nil, err
	}

	timer.Mark("fuse")
	fused := fuser.Fuse(lexical, vector)
	if len(fused) > q.MaxResults {
		fused = fused[:q.MaxResults]
	}
	results := e.toResults(fused)

	timer.Mark("expand")
	if q.WantsDependencies() && len(results) > 0 {
		if err := e.expandPrimary(ctx, q, results); err != nil {
			// Expansion is best-effort; the primary result stands alone.
			e.logger.Warn("dependency expansion failed", "error", err)
			diagnostic = appendDiagnostic(diagnostic, "dependency expansion incomplete")
		}
	}

	if e.shouldCache(q, len(results), cfg.Cache.DependencyResultThreshold) {
		e.cache.Put(key, results)
	}

	e.record(q, cacheStatus, len(results), timer.Total())

	return &SearchResponse{
		Results:     results,
		CacheStatus: cacheStatus,
		Timings:     timingsWithTotal(timer),
		Diagnostic:  diagnostic,
	}, nil
}

// retrieve issues the lexical and vector channel calls in parallel.
// Exact terms route the lexical channel through the backend's native
// exact predicate, falling back to term-appended free text when the
// backend does not support it. A vector channel failure degrades to
// lexical-only rather than failing the request.
func (e *Engine) retrieve(ctx context.Context, q query.SearchQuery, terms []string, overfetch int) (lexical, vector []backend.Hit, diagnostic string, err error) {
	if overfetch < 1 {
		overfetch = 1
	}
	topK := q.MaxResults * overfetch

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		hits, lexErr := e.lexicalChannel(gctx, q, terms, topK)
		if lexErr != nil {
			return lexErr
		}
		mu.Lock()
		lexical = hits
		mu.Unlock()
		return nil
	})

	if !q.LexicalOnly {
		g.Go(func() error {
			hits, vecErr := e.backend.Search(gctx, backend.SearchRequest{
				Query:        q.Query,
				Repository:   q.Repository,
				Language:     q.Language,
				FileTypes:    q.FileTypes,
				TopK:         topK,
				WantVectors:  true,
				SelectFields: e.mapper.SelectList(),
			})
			if vecErr != nil {
				if errors.Is(vecErr, context.DeadlineExceeded) {
					return vecErr
				}
				e.logger.Warn("vector channel failed, degrading to lexical only", "error", vecErr)
				mu.Lock()
				diagnostic = appendDiagnostic(diagnostic, "vector channel unavailable")
				mu.Unlock()
				return nil
			}
			mu.Lock()
			vector = hits
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, nil, "", err
		}
		return nil, nil, "", relayerrors.BackendUnavailable("search backend request failed", err)
	}
	return lexical, vector, diagnostic, nil
}

// lexicalChannel runs the exact-predicate path when terms are present.
func (e *Engine) lexicalChannel(ctx context.Context, q query.SearchQuery, terms []string, topK int) ([]backend.Hit, error) {
	queryText := q.Query

	if len(terms) > 0 {
		hits, err := e.backend.LookupExact(ctx, backend.ExactRequest{
			Query:      q.Query,
			Terms:      terms,
			Repository: q.Repository,
			Language:   q.Language,
			TopK:       topK,
		})
		if err == nil {
			return hits, nil
		}
		if !errors.Is(err, backend.ErrExactUnsupported) {
			return nil, err
		}
		// Precision-for-availability trade: quote the terms into the
		// free-text query instead.
		queryText = query.AppendTermsToQuery(q.Query, terms)
	}

	return e.backend.Search(ctx, backend.SearchRequest{
		Query:        queryText,
		Repository:   q.Repository,
		Language:     q.Language,
		FileTypes:    q.FileTypes,
		TopK:         topK,
		SelectFields: e.mapper.SelectList(),
	})
}

// expandPrimary builds the dependency graph for the first result that
// declares dependencies and attaches it there.
func (e *Engine) expandPrimary(ctx context.Context, q query.SearchQuery, results []SearchResult) error {
	for i := range results {
		r := &results[i]
		if len(r.Dependencies) == 0 {
			continue
		}

		g, err := e.resolver.Resolve(ctx, graph.Seed{
			FilePath:     r.FilePath,
			FunctionName: r.FunctionName,
			Repository:   r.Repository,
			Language:     r.Language,
			Dependencies: r.Dependencies,
		}, q.DependencyMode == query.DepGraph)
		if err != nil {
			return err
		}
		r.DependencyGraph = g
		return nil
	}
	return nil
}

func (e *Engine) toResults(fused []*rank.Fused) []SearchResult {
	results := make([]SearchResult, 0, len(fused))
	for _, f := range fused {
		results = append(results, SearchResult{
			ID:           f.ID,
			FilePath:     e.mapper.GetString(f.Fields, schema.FieldFilePath, ""),
			Repository:   e.mapper.GetString(f.Fields, schema.FieldRepository, ""),
			Language:     e.mapper.GetString(f.Fields, schema.FieldLanguage, ""),
			Score:        f.HybridScore,
			Snippet:      snippet(e.mapper.GetString(f.Fields, schema.FieldContent, "")),
			FunctionName: e.mapper.GetString(f.Fields, schema.FieldFunctionName, ""),
			ClassName:    e.mapper.GetString(f.Fields, schema.FieldClassName, ""),
			Signature:    e.mapper.GetString(f.Fields, schema.FieldSignature, ""),
			StartLine:    e.mapper.GetInt(f.Fields, schema.FieldStartLine, 0),
			EndLine:      e.mapper.GetInt(f.Fields, schema.FieldEndLine, 0),
			Dependencies: e.mapper.GetStringSlice(f.Fields, schema.FieldDependencies),
		})
	}
	return results
}

// shouldCache implements the cache admission policy: explicit bypass
// wins, and dependency-expanded sets above the threshold are too heavy
// and drift-sensitive to cache.
func (e *Engine) shouldCache(q query.SearchQuery, resultCount, depThreshold int) bool {
	if q.NoCache {
		return false
	}
	if q.WantsDependencies() && resultCount > depThreshold {
		return false
	}
	return true
}

func (e *Engine) record(q query.SearchQuery, cacheStatus string, resultCount int, latency time.Duration) {
	if e.metrics == nil {
		return
	}
	e.metrics.Record(telemetry.SearchEvent{
		Query:       q.Query,
		Intent:      string(q.Intent),
		CacheStatus: cacheStatus,
		ResultCount: resultCount,
		Latency:     latency,
		Timestamp:   time.Now(),
	})
}

// snapshot reads the reloadable parts of the engine under the lock.
func (e *Engine) snapshot() (*config.Config, *rank.Fuser, time.Duration) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cfg, e.fuser, e.timeout
}

func cacheKey(q query.SearchQuery, terms []string) cache.Key {
	return cache.Key{
		Query:          q.Query,
		Intent:         string(q.Intent),
		Repository:     q.Repository,
		Language:       q.Language,
		FileTypes:      q.FileTypes,
		ExactTerms:     terms,
		MaxResults:     q.MaxResults,
		DependencyMode: string(q.DependencyMode),
		LexicalOnly:    q.LexicalOnly,
	}
}

func timingsWithTotal(t *timing.Timer) map[string]int64 {
	out := t.Milliseconds()
	out["total"] = t.Total().Milliseconds()
	return out
}

func snippet(content string) string {
	if len(content) <= snippetMaxLen {
		return content
	}
	return content[:snippetMaxLen] + "..."
}

func appendDiagnostic(existing, note string) string {
	if existing == "" {
		return note
	}
	return fmt.Sprintf("%s; %s", existing, note)
}
