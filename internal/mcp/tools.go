package mcp

import (
	"github.com/searchrelay/searchrelay/internal/cache"
	"github.com/searchrelay/searchrelay/internal/graph"
	"github.com/searchrelay/searchrelay/internal/rank"
	"github.com/searchrelay/searchrelay/internal/relay"
)

// SearchCodeInput is the input schema for the search_code tool.
type SearchCodeInput struct {
	Query          string   `json:"query" jsonschema:"the code search query to execute"`
	Intent         string   `json:"intent,omitempty" jsonschema:"search intent: implement, debug, understand, or refactor"`
	Language       string   `json:"language,omitempty" jsonschema:"filter by programming language (go, python, typescript)"`
	Repository     string   `json:"repository,omitempty" jsonschema:"filter by repository name"`
	FileTypes      []string `json:"file_types,omitempty" jsonschema:"filter by file extension (.go, .py)"`
	Limit          int      `json:"limit,omitempty" jsonschema:"maximum number of results, 1-50, default 10"`
	ExactTerms     []string `json:"exact_terms,omitempty" jsonschema:"literal substrings that must match verbatim"`
	DependencyMode string   `json:"dependency_mode,omitempty" jsonschema:"dependency expansion: never, auto, always, or graph"`
	NoCache        bool     `json:"no_cache,omitempty" jsonschema:"bypass the result cache for this request"`
	LexicalOnly    bool     `json:"lexical_only,omitempty" jsonschema:"skip the vector channel entirely"`
}

// SearchResultOutput is one result in tool output form.
type SearchResultOutput struct {
	ID         string  `json:"id"`
	FilePath   string  `json:"file_path"`
	Repository string  `json:"repository,omitempty"`
	Language   string  `json:"language,omitempty"`
	Score      float64 `json:"score"`
	Snippet    string  `json:"snippet,omitempty"`

	FunctionName string `json:"function_name,omitempty"`
	ClassName    string `json:"class_name,omitempty"`
	Signature    string `json:"signature,omitempty"`
	StartLine    int    `json:"start_line,omitempty"`
	EndLine      int    `json:"end_line,omitempty"`

	Dependencies    []string     `json:"dependencies,omitempty"`
	DependencyGraph *graph.Graph `json:"dependency_graph,omitempty"`
}

// SearchCodeOutput is the output schema for the search_code tool.
type SearchCodeOutput struct {
	Results     []SearchResultOutput `json:"results"`
	CacheStatus string               `json:"cache_status"`
	Timings     map[string]int64     `json:"timings_ms"`
	Diagnostic  string               `json:"diagnostic,omitempty"`
}

func toSearchCodeOutput(resp *relay.SearchResponse) SearchCodeOutput {
	out := SearchCodeOutput{
		Results:     make([]SearchResultOutput, 0, len(resp.Results)),
		CacheStatus: resp.CacheStatus,
		Timings:     resp.Timings,
		Diagnostic:  resp.Diagnostic,
	}
	for _, r := range resp.Results {
		out.Results = append(out.Results, SearchResultOutput{
			ID:              r.ID,
			FilePath:        r.FilePath,
			Repository:      r.Repository,
			Language:        r.Language,
			Score:           r.Score,
			Snippet:         r.Snippet,
			FunctionName:    r.FunctionName,
			ClassName:       r.ClassName,
			Signature:       r.Signature,
			StartLine:       r.StartLine,
			EndLine:         r.EndLine,
			Dependencies:    r.Dependencies,
			DependencyGraph: r.DependencyGraph,
		})
	}
	return out
}

// ExplainRankingInput is the input schema for the explain_ranking tool.
type ExplainRankingInput struct {
	Query      string `json:"query" jsonschema:"the search query to explain"`
	Mode       string `json:"mode,omitempty" jsonschema:"explanation mode: auto (backend diagnostics with heuristic fallback) or heuristic"`
	Language   string `json:"language,omitempty" jsonschema:"filter by programming language"`
	Repository string `json:"repository,omitempty" jsonschema:"filter by repository name"`
	Limit      int    `json:"limit,omitempty" jsonschema:"maximum number of results to explain, default 10"`
}

// ExplainRankingOutput is the output schema for the explain_ranking tool.
type ExplainRankingOutput struct {
	Explanations []rank.Explanation `json:"explanations"`
}

// CacheStatsOutput is the output schema for the cache_stats tool.
type CacheStatsOutput struct {
	cache.Stats
}

// CacheInvalidateInput is the input schema for the cache_invalidate tool.
type CacheInvalidateInput struct {
	Pattern    string `json:"pattern,omitempty" jsonschema:"case-insensitive substring matched against cached query text"`
	Repository string `json:"repository,omitempty" jsonschema:"exact repository name to invalidate"`
	Language   string `json:"language,omitempty" jsonschema:"exact language to invalidate"`
}

// CacheInvalidateOutput is the output schema for the cache_invalidate tool.
type CacheInvalidateOutput struct {
	Removed int `json:"removed"`
}

// CacheClearOutput is the output schema for the cache_clear tool.
type CacheClearOutput struct {
	Removed   int `json:"removed"`
	Remaining int `json:"remaining"`
}

// BackendStatusOutput is the output schema for the backend_status tool.
type BackendStatusOutput struct {
	relay.BackendStatus
}

// emptyInput is used by tools that take no parameters.
type emptyInput struct{}
