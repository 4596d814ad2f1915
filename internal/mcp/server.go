// Package mcp exposes the relay engine over the Model Context Protocol.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/searchrelay/searchrelay/internal/cache"
	"github.com/searchrelay/searchrelay/internal/query"
	"github.com/searchrelay/searchrelay/internal/rank"
	"github.com/searchrelay/searchrelay/internal/relay"
	"github.com/searchrelay/searchrelay/pkg/version"
)

// ServerName is the implementation name advertised to clients.
const ServerName = "searchrelay"

// Server wires the relay engine into an MCP server.
type Server struct {
	engine *relay.Engine
	mcp    *mcp.Server
	logger *slog.Logger
}

// NewServer creates an MCP server over the engine.
func NewServer(engine *relay.Engine, logger *slog.Logger) (*Server, error) {
	if engine == nil {
		return nil, errors.New("engine is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		engine: engine,
		logger: logger,
	}

	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    ServerName,
			Version: version.Version,
		},
		nil,
	)
	s.registerTools()

	return s, nil
}

// MCPServer returns the underlying MCP server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "search_code",
		Description: "Hybrid code search combining keyword and semantic retrieval. Supports intent hints, exact-term matching for identifiers and version strings, and optional dependency graph expansion.",
	}, s.searchCodeHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "explain_ranking",
		Description: "Explain why results rank where they do: per-result factor breakdowns from backend scoring diagnostics, falling back to local heuristics when diagnostics are unavailable.",
	}, s.explainRankingHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "cache_stats",
		Description: "Report query cache occupancy: total, active, and expired entries plus hit/miss counters.",
	}, s.cacheStatsHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "cache_invalidate",
		Description: "Remove cached entries by query substring (case-insensitive), exact repository, or exact language. Returns the count removed. Use after reindexing a repository.",
	}, s.cacheInvalidateHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "cache_clear",
		Description: "Remove every cached entry. Returns the count removed.",
	}, s.cacheClearHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "backend_status",
		Description: "Check search backend availability, schema health, and capabilities (exact lookup, scoring diagnostics).",
	}, s.backendStatusHandler)

	s.logger.Info("MCP tools registered", slog.Int("count", 6))
}

func (s *Server) searchCodeHandler(ctx context.Context, _ *mcp.CallToolRequest, input SearchCodeInput) (
	*mcp.CallToolResult,
	SearchCodeOutput,
	error,
) {
	q := query.SearchQuery{
		Query:          input.Query,
		Intent:         query.Intent(input.Intent),
		Language:       input.Language,
		Repository:     input.Repository,
		FileTypes:      input.FileTypes,
		MaxResults:     input.Limit,
		ExactTerms:     input.ExactTerms,
		DependencyMode: query.DependencyMode(input.DependencyMode),
		NoCache:        input.NoCache,
		LexicalOnly:    input.LexicalOnly,
	}

	resp, err := s.engine.SearchCode(ctx, q)
	if err != nil {
		return nil, SearchCodeOutput{}, MapError(err)
	}
	return nil, toSearchCodeOutput(resp), nil
}

func (s *Server) explainRankingHandler(ctx context.Context, _ *mcp.CallToolRequest, input ExplainRankingInput) (
	*mcp.CallToolResult,
	ExplainRankingOutput,
	error,
) {
	mode := input.Mode
	switch mode {
	case "":
		mode = rank.ExplainModeAuto
	case rank.ExplainModeAuto, rank.ExplainModeBackend, rank.ExplainModeHeuristic:
	default:
		return nil, ExplainRankingOutput{}, NewInvalidParamsError(
			fmt.Sprintf("unknown mode %q (supported: auto, backend, heuristic)", input.Mode))
	}

	q := query.SearchQuery{
		Query:      input.Query,
		Language:   input.Language,
		Repository: input.Repository,
		MaxResults: input.Limit,
	}

	explanations, err := s.engine.ExplainRanking(ctx, q, mode)
	if err != nil {
		return nil, ExplainRankingOutput{}, MapError(err)
	}
	return nil, ExplainRankingOutput{Explanations: explanations}, nil
}

func (s *Server) cacheStatsHandler(ctx context.Context, _ *mcp.CallToolRequest, _ emptyInput) (
	*mcp.CallToolResult,
	CacheStatsOutput,
	error,
) {
	return nil, CacheStatsOutput{Stats: s.engine.CacheStats()}, nil
}

func (s *Server) cacheInvalidateHandler(ctx context.Context, _ *mcp.CallToolRequest, input CacheInvalidateInput) (
	*mcp.CallToolResult,
	CacheInvalidateOutput,
	error,
) {
	if input.Pattern == "" && input.Repository == "" && input.Language == "" {
		return nil, CacheInvalidateOutput{}, NewInvalidParamsError(
			"at least one of pattern, repository, or language is required (use cache_clear to remove everything)")
	}

	removed := s.engine.CacheInvalidate(cache.InvalidateOptions{
		QuerySubstring: input.Pattern,
		Repository:     input.Repository,
		Language:       input.Language,
	})
	return nil, CacheInvalidateOutput{Removed: removed}, nil
}

func (s *Server) cacheClearHandler(ctx context.Context, _ *mcp.CallToolRequest, _ emptyInput) (
	*mcp.CallToolResult,
	CacheClearOutput,
	error,
) {
	removed := s.engine.CacheClear()
	return nil, CacheClearOutput{
		Removed:   removed,
		Remaining: s.engine.CacheStats().Total,
	}, nil
}

func (s *Server) backendStatusHandler(ctx context.Context, _ *mcp.CallToolRequest, _ emptyInput) (
	*mcp.CallToolResult,
	BackendStatusOutput,
	error,
) {
	return nil, BackendStatusOutput{BackendStatus: s.engine.Status(ctx)}, nil
}

// Serve runs the server on the given transport until the context ends.
func (s *Server) Serve(ctx context.Context, transport string) error {
	s.logger.Info("starting MCP server", slog.String("transport", transport))

	switch transport {
	case "stdio":
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("MCP server stopped with error", slog.String("error", err.Error()))
			return err
		}
		s.logger.Info("MCP server stopped")
		return nil
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio)", transport)
	}
}
