// Package backend defines the search backend contract the relay core
// depends on, plus an embedded in-process implementation used for
// development and tests.
//
// The relay never talks to an index directly; it issues channel retrievals
// through this interface and degrades locally when optional capabilities
// (exact predicates, scoring diagnostics) are missing.
package backend

import (
	"context"
	"errors"
)

// SearchRequest is a single-channel retrieval call.
type SearchRequest struct {
	// Query is the free-text query for this channel.
	Query string

	// Repository, Language, and FileTypes filter the candidate set.
	Repository string
	Language   string
	FileTypes  []string

	// TopK bounds the number of hits returned.
	TopK int

	// WantVectors selects the vector channel instead of the lexical one.
	WantVectors bool

	// SelectFields limits which stored fields the backend returns.
	// Empty means all stored fields.
	SelectFields []string
}

// ExactRequest asks the backend to match the given terms verbatim.
type ExactRequest struct {
	Query      string
	Terms      []string
	Repository string
	Language   string
	TopK       int
}

// Hit is one retrieved document with its raw channel score and the stored
// fields under the backend's own schema names.
type Hit struct {
	ID     string
	Score  float64
	Fields map[string]any
}

// FeatureSet carries native scoring diagnostics for one document.
type FeatureSet struct {
	// FieldScores maps backend field names to per-field feature scores.
	FieldScores map[string]float64

	// RerankerScore is the backend reranker's score, if one ran.
	RerankerScore float64
	HasReranker   bool
}

// Capability errors. Both mean "this backend cannot", distinct from "no
// results"; callers fall back rather than failing.
var (
	// ErrExactUnsupported signals the backend has no native exact-match
	// predicate. The relay appends terms to the free-text query instead.
	ErrExactUnsupported = errors.New("exact match not supported by backend")

	// ErrFeaturesUnavailable signals the backend cannot produce scoring
	// diagnostics. The relay falls back to heuristic explanations.
	ErrFeaturesUnavailable = errors.New("scoring diagnostics unavailable")
)

// Backend is the retrieval collaborator contract.
type Backend interface {
	// Search executes one retrieval channel and returns ordered hits.
	Search(ctx context.Context, req SearchRequest) ([]Hit, error)

	// LookupExact retrieves documents matching every term verbatim.
	// Returns ErrExactUnsupported when the backend lacks the capability.
	LookupExact(ctx context.Context, req ExactRequest) ([]Hit, error)

	// DetailedFeatures returns native scoring diagnostics per document ID.
	// Returns ErrFeaturesUnavailable when the backend cannot produce them.
	DetailedFeatures(ctx context.Context, queryText string, ids []string) (map[string]FeatureSet, error)

	// SchemaFields lists the field names the backend schema exposes,
	// used to construct the field mapper once per backend.
	SchemaFields() []string

	// Available reports whether the backend is reachable.
	Available(ctx context.Context) bool

	// Close releases backend resources.
	Close() error
}
