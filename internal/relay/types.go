package relay

import (
	"github.com/searchrelay/searchrelay/internal/graph"
)

// Cache status values reported on every response.
const (
	CacheHit    = "hit"
	CacheMiss   = "miss"
	CacheBypass = "bypass"
)

// SearchResult is one ranked result with canonical field names, resolved
// through the schema mapper regardless of the backend's naming.
type SearchResult struct {
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

// SearchResponse is the complete answer to one search request.
type SearchResponse struct {
	Results     []SearchResult   `json:"results"`
	CacheStatus string           `json:"cache_status"`
	Timings     map[string]int64 `json:"timings_ms"`

	// Diagnostic carries degradation notes (timeout, channel failures)
	// that did not prevent a response.
	Diagnostic string `json:"diagnostic,omitempty"`
}

// BackendStatus describes the retrieval collaborator's health.
type BackendStatus struct {
	Available      bool     `json:"available"`
	SchemaValid    bool     `json:"schema_valid"`
	MissingFields  []string `json:"missing_fields,omitempty"`
	SchemaFields   []string `json:"schema_fields"`
	ExactLookup    bool     `json:"exact_lookup"`
	HasDiagnostics bool     `json:"has_diagnostics"`
}
