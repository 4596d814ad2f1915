// Package query defines the search request model and derives exact-match
// terms from free-text queries.
package query

import (
	"fmt"
	"strings"

	relayerrors "github.com/searchrelay/searchrelay/internal/errors"
)

// Intent classifies what the caller is trying to do with the results.
type Intent string

const (
	IntentImplement  Intent = "implement"
	IntentDebug      Intent = "debug"
	IntentUnderstand Intent = "understand"
	IntentRefactor   Intent = "refactor"
)

// DependencyMode controls dependency graph expansion.
type DependencyMode string

const (
	// DepNever disables expansion.
	DepNever DependencyMode = "never"
	// DepAuto expands one level when the intent warrants it.
	DepAuto DependencyMode = "auto"
	// DepAlways expands one level for every query.
	DepAlways DependencyMode = "always"
	// DepGraph expands recursively within configured bounds.
	DepGraph DependencyMode = "graph"
)

// MaxResultsLimit is the hard cap on requested results.
const MaxResultsLimit = 50

// SearchQuery is an immutable search request. Construct one, normalize it
// with WithDefaults, validate it, and treat it as read-only afterwards.
type SearchQuery struct {
	// Query is the free-text query.
	Query string

	// Intent hints at what kind of results serve the caller best.
	Intent Intent

	// Language restricts results to one programming language.
	Language string

	// Repository restricts results to one repository.
	Repository string

	// FileTypes restricts results by file extension.
	FileTypes []string

	// MaxResults bounds the returned result count (1-50).
	MaxResults int

	// ExactTerms are literal substrings that must match verbatim.
	// Callers may supply them; the extractor augments them.
	ExactTerms []string

	// DependencyMode controls dependency graph expansion.
	DependencyMode DependencyMode

	// NoCache bypasses the result cache for this request.
	NoCache bool

	// LexicalOnly skips the vector channel entirely.
	LexicalOnly bool
}

// WithDefaults returns a copy with zero values filled in.
func (q SearchQuery) WithDefaults(defaultMaxResults int) SearchQuery {
	if q.MaxResults == 0 {
		q.MaxResults = defaultMaxResults
	}
	if q.DependencyMode == "" {
		q.DependencyMode = DepNever
	}
	return q
}

// Validate checks the query for invalid parameter values.
// Errors are validation errors surfaced directly to the caller.
func (q SearchQuery) Validate() error {
	if strings.TrimSpace(q.Query) == "" {
		return relayerrors.New(relayerrors.ErrCodeQueryEmpty, "query must not be empty", nil)
	}

	if q.MaxResults < 1 || q.MaxResults > MaxResultsLimit {
		return relayerrors.New(relayerrors.ErrCodeInvalidLimit,
			fmt.Sprintf("max_results must be between 1 and %d, got %d", MaxResultsLimit, q.MaxResults), nil)
	}

	switch q.Intent {
	case "", IntentImplement, IntentDebug, IntentUnderstand, IntentRefactor:
	default:
		return relayerrors.New(relayerrors.ErrCodeInvalidIntent,
			fmt.Sprintf("unknown intent %q", q.Intent), nil)
	}

	switch q.DependencyMode {
	case DepNever, DepAuto, DepAlways, DepGraph:
	default:
		return relayerrors.New(relayerrors.ErrCodeInvalidDepMode,
			fmt.Sprintf("unknown dependency_mode %q", q.DependencyMode), nil)
	}

	return nil
}

// WantsDependencies reports whether this query triggers dependency
// expansion. Auto mode expands only for understanding queries, where the
// caller is mapping how code fits together.
func (q SearchQuery) WantsDependencies() bool {
	switch q.DependencyMode {
	case DepAlways, DepGraph:
		return true
	case DepAuto:
		return q.Intent == IntentUnderstand
	default:
		return false
	}
}
