package rank

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"unicode"

	"github.com/searchrelay/searchrelay/internal/backend"
	"github.com/searchrelay/searchrelay/internal/schema"
)

// Explanation modes.
const (
	ExplainModeAuto      = "auto"      // backend diagnostics, heuristic fallback
	ExplainModeBackend   = "backend"   // same as auto; fallback still applies
	ExplainModeHeuristic = "heuristic" // skip diagnostics entirely
)

// Factor types.
const (
	FactorTypeBackend   = "backend_feature" // native per-field feature score
	FactorTypeSemantic  = "semantic"        // reranker / vector similarity
	FactorTypeHeuristic = "heuristic"       // locally computed approximation
)

// Heuristic factor weights. Term overlap dominates; the weighted sum
// approximates the displayed score, it is not required to match it.
const (
	termOverlapWeight   = 0.4
	baseScoreWeight     = 0.3
	repositoryWeight    = 0.2
	signatureWeight     = 0.1
	heuristicMatchValue = 1.0
)

// Factor is one scored component of a ranking explanation.
type Factor struct {
	Name         string  `json:"name"`
	Type         string  `json:"type"`
	Value        float64 `json:"value"`
	Weight       float64 `json:"weight,omitempty"`
	Contribution float64 `json:"contribution,omitempty"`
}

// Explanation breaks down why one result ranked where it did.
type Explanation struct {
	ID      string   `json:"id"`
	Score   float64  `json:"score"`
	Mode    string   `json:"mode"`
	Factors []Factor `json:"factors"`
	Summary string   `json:"summary"`
}

// Explainer produces per-result ranking explanations. It prefers the
// backend's native scoring diagnostics; any diagnostics failure falls
// back to heuristics silently, surfacing only in the explanation's Mode.
type Explainer struct {
	backend backend.Backend
	mapper  *schema.Mapper
	logger  *slog.Logger
}

// NewExplainer creates an explainer over the given backend and schema.
func NewExplainer(be backend.Backend, mapper *schema.Mapper, logger *slog.Logger) *Explainer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Explainer{backend: be, mapper: mapper, logger: logger}
}

// Explain returns exactly one explanation per input result, in input
// order, regardless of diagnostics availability.
func (e *Explainer) Explain(ctx context.Context, queryText string, results []*Fused, mode string) []Explanation {
	if len(results) == 0 {
		return []Explanation{}
	}

	var features map[string]backend.FeatureSet
	if mode != ExplainModeHeuristic {
		ids := make([]string, len(results))
		for i, r := range results {
			ids[i] = r.ID
		}

		var err error
		features, err = e.backend.DetailedFeatures(ctx, queryText, ids)
		if err != nil {
			e.logger.Debug("scoring diagnostics unavailable, explaining heuristically",
				"error", err)
			features = nil
		}
	}

	explanations := make([]Explanation, 0, len(results))
	for _, r := range results {
		if fs, ok := features[r.ID]; ok {
			explanations = append(explanations, e.backendExplanation(r, fs))
		} else {
			explanations = append(explanations, e.heuristicExplanation(queryText, r))
		}
	}
	return explanations
}

// backendExplanation maps native diagnostics into factors.
func (e *Explainer) backendExplanation(r *Fused, fs backend.FeatureSet) Explanation {
	factors := make([]Factor, 0, len(fs.FieldScores)+1)

	names := make([]string, 0, len(fs.FieldScores))
	for name := range fs.FieldScores {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		factors = append(factors, Factor{
			Name:  "field_" + name,
			Type:  FactorTypeBackend,
			Value: fs.FieldScores[name],
		})
	}

	if fs.HasReranker {
		factors = append(factors, Factor{
			Name:  "reranker_score",
			Type:  FactorTypeSemantic,
			Value: fs.RerankerScore,
		})
	}

	return Explanation{
		ID:      r.ID,
		Score:   r.HybridScore,
		Mode:    "backend",
		Factors: factors,
		Summary: summarize(r, factors),
	}
}

// heuristicExplanation approximates the score from locally observable
// signals: query/content term overlap, repository-name presence in the
// query, signature match, and the original relevance as base_score.
func (e *Explainer) heuristicExplanation(queryText string, r *Fused) Explanation {
	tokens := queryTokens(queryText)

	content := e.mapper.GetString(r.Fields, schema.FieldContent, "")
	repository := e.mapper.GetString(r.Fields, schema.FieldRepository, "")
	signature := e.mapper.GetString(r.Fields, schema.FieldSignature, "")

	factors := make([]Factor, 0, 4)

	overlap := tokenOverlap(tokens, content)
	factors = append(factors, Factor{
		Name:         "term_overlap",
		Type:         FactorTypeHeuristic,
		Value:        overlap,
		Weight:       termOverlapWeight,
		Contribution: overlap * termOverlapWeight,
	})

	if repository != "" && strings.Contains(strings.ToLower(queryText), strings.ToLower(repository)) {
		factors = append(factors, Factor{
			Name:         "repository_match",
			Type:         FactorTypeHeuristic,
			Value:        heuristicMatchValue,
			Weight:       repositoryWeight,
			Contribution: repositoryWeight,
		})
	}

	if sigOverlap := tokenOverlap(tokens, signature); sigOverlap > 0 {
		factors = append(factors, Factor{
			Name:         "signature_match",
			Type:         FactorTypeHeuristic,
			Value:        sigOverlap,
			Weight:       signatureWeight,
			Contribution: sigOverlap * signatureWeight,
		})
	}

	// Always present: carries the original relevance value.
	factors = append(factors, Factor{
		Name:         "base_score",
		Type:         FactorTypeHeuristic,
		Value:        r.HybridScore,
		Weight:       baseScoreWeight,
		Contribution: r.HybridScore * baseScoreWeight,
	})

	return Explanation{
		ID:      r.ID,
		Score:   r.HybridScore,
		Mode:    "heuristic",
		Factors: factors,
		Summary: summarize(r, factors),
	}
}

func summarize(r *Fused, factors []Factor) string {
	var parts []string

	if r.InBothLists {
		parts = append(parts, "confirmed by lexical and vector channels")
	} else if r.BM25Rank > 0 {
		parts = append(parts, "lexical match only")
	} else if r.VecRank > 0 {
		parts = append(parts, "semantic match only")
	}

	var top Factor
	for _, f := range factors {
		if f.Name == "base_score" {
			continue
		}
		if f.Value > top.Value {
			top = f
		}
	}
	if top.Name != "" {
		parts = append(parts, fmt.Sprintf("strongest factor %s (%.2f)", top.Name, top.Value))
	}

	if len(parts) == 0 {
		return fmt.Sprintf("score %.3f", r.HybridScore)
	}
	return strings.Join(parts, "; ")
}

// queryTokens lowercases and splits on non-alphanumeric runes.
func queryTokens(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// tokenOverlap returns the fraction of tokens present in the value.
func tokenOverlap(tokens []string, value string) float64 {
	if len(tokens) == 0 || value == "" {
		return 0
	}
	lower := strings.ToLower(value)
	present := 0
	for _, tok := range tokens {
		if strings.Contains(lower, tok) {
			present++
		}
	}
	return float64(present) / float64(len(tokens))
}
