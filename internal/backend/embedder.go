package backend

import (
	"hash/fnv"
	"math"
	"regexp"
	"strings"
	"unicode"
)

// hashEmbedder produces deterministic hash-based embeddings for the
// embedded backend. No model download, no network: token and character
// n-gram features are hashed into a fixed-size vector. Semantic quality is
// modest but stable, which is exactly what tests and local development need.
type hashEmbedder struct {
	dims int
}

const (
	tokenWeight = 0.7
	ngramWeight = 0.3
	ngramSize   = 3
)

// keyword noise common across languages; carries no retrieval signal
var codeStopWords = map[string]bool{
	"func": true, "function": true, "def": true, "class": true,
	"return": true, "import": true, "const": true, "var": true,
	"let": true, "int": true, "string": true, "bool": true,
	"void": true, "true": true, "false": true, "nil": true,
	"null": true, "this": true, "self": true, "new": true,
}

var wordRe = regexp.MustCompile(`[a-zA-Z0-9]+`)

func newHashEmbedder(dims int) *hashEmbedder {
	if dims <= 0 {
		dims = 256
	}
	return &hashEmbedder{dims: dims}
}

// Embed generates a normalized embedding for the text.
func (e *hashEmbedder) Embed(text string) []float32 {
	vector := make([]float32, e.dims)

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return vector
	}

	for _, token := range embedTokens(trimmed) {
		vector[hashToIndex(token, e.dims)] += tokenWeight
	}

	normalized := normalizeForNgrams(trimmed)
	for i := 0; i+ngramSize <= len(normalized); i++ {
		vector[hashToIndex(normalized[i:i+ngramSize], e.dims)] += ngramWeight
	}

	return l2Normalize(vector)
}

// Dimensions returns the embedding dimension.
func (e *hashEmbedder) Dimensions() int {
	return e.dims
}

// embedTokens tokenizes code-aware: identifiers are split on underscores
// and case transitions, lowercased, and stripped of keyword noise.
func embedTokens(text string) []string {
	var tokens []string
	for _, word := range wordRe.FindAllString(text, -1) {
		for _, sub := range splitIdentifier(word) {
			lower := strings.ToLower(sub)
			if lower != "" && !codeStopWords[lower] {
				tokens = append(tokens, lower)
			}
		}
	}
	return tokens
}

// splitIdentifier splits snake_case and camelCase identifiers into parts.
func splitIdentifier(token string) []string {
	if strings.Contains(token, "_") {
		var parts []string
		for _, p := range strings.Split(token, "_") {
			if p != "" {
				parts = append(parts, splitCamel(p)...)
			}
		}
		return parts
	}
	return splitCamel(token)
}

func splitCamel(s string) []string {
	if s == "" {
		return nil
	}

	var result []string
	var current strings.Builder

	runes := []rune(s)
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) {
			prevIsLower := unicode.IsLower(runes[i-1])
			nextIsLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			// Split on case transitions; the acronym tail stays together
			if prevIsLower || nextIsLower {
				if current.Len() > 0 {
					result = append(result, current.String())
					current.Reset()
				}
			}
		}
		current.WriteRune(r)
	}

	if current.Len() > 0 {
		result = append(result, current.String())
	}
	return result
}

func normalizeForNgrams(text string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func hashToIndex(s string, size int) int {
	h := fnv.New64()
	_, _ = h.Write([]byte(s))
	return int(h.Sum64() % uint64(size))
}

func l2Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	norm := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= norm
	}
	return v
}
