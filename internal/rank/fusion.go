// Package rank fuses lexical and vector retrieval channels into a single
// hybrid ranking and explains why results scored the way they did.
package rank

import (
	"sort"

	"github.com/searchrelay/searchrelay/internal/backend"
)

// Default channel weights. Lexical carries more weight because exact
// token overlap is the stronger signal for code retrieval.
const (
	DefaultBM25Weight   = 0.6
	DefaultVectorWeight = 0.4

	// neutralScore is assigned when a channel cannot discriminate:
	// every score tied, or a single result. Missing entirely is 0, not
	// neutral, so present-but-flat channels still lift their documents.
	neutralScore = 0.5
)

// Fused is a single result after hybrid fusion.
type Fused struct {
	ID          string         // Document identifier
	HybridScore float64        // Weighted sum of normalized channel scores
	BM25Score   float64        // Raw lexical score (preserved)
	BM25Norm    float64        // Min-max normalized lexical score
	BM25Rank    int            // Position in lexical list (1-indexed, 0 if absent)
	VecScore    float64        // Raw vector similarity (preserved)
	VecNorm     float64        // Min-max normalized vector score
	VecRank     int            // Position in vector list (1-indexed, 0 if absent)
	InBothLists bool           // Document appeared in both channels
	Fields      map[string]any // Backend fields (lexical hit wins on conflict)
}

// Fuser combines the two channels with per-channel min-max normalization
// followed by a weighted sum:
//
//	hybrid(d) = w_bm25 * norm_bm25(d) + w_vec * norm_vec(d)
//
// Normalization maps each channel's scores onto [0, 1] independently, so
// BM25 magnitudes (unbounded) and cosine similarities (bounded) become
// comparable before weighting.
type Fuser struct {
	BM25Weight   float64
	VectorWeight float64
}

// NewFuser creates a fuser with the given channel weights.
// Non-positive weights fall back to the defaults.
func NewFuser(bm25Weight, vectorWeight float64) *Fuser {
	if bm25Weight <= 0 {
		bm25Weight = DefaultBM25Weight
	}
	if vectorWeight < 0 {
		vectorWeight = DefaultVectorWeight
	}
	return &Fuser{BM25Weight: bm25Weight, VectorWeight: vectorWeight}
}

// Fuse merges the two ranked hit lists and returns results sorted by
// hybrid score. Ties keep the original lexical order.
func (f *Fuser) Fuse(lexical, vector []backend.Hit) []*Fused {
	if len(lexical) == 0 && len(vector) == 0 {
		return []*Fused{}
	}

	merged := make(map[string]*Fused, len(lexical)+len(vector))

	lexNorms := normalizeScores(hitScores(lexical))
	for rank, hit := range lexical {
		r := getOrCreate(merged, hit.ID)
		r.BM25Score = hit.Score
		r.BM25Norm = lexNorms[rank]
		r.BM25Rank = rank + 1
		r.Fields = hit.Fields
	}

	vecNorms := normalizeScores(hitScores(vector))
	for rank, hit := range vector {
		r := getOrCreate(merged, hit.ID)
		r.VecScore = hit.Score
		r.VecNorm = vecNorms[rank]
		r.VecRank = rank + 1
		if r.Fields == nil {
			r.Fields = hit.Fields
		}
		if r.BM25Rank > 0 {
			r.InBothLists = true
		}
	}

	results := make([]*Fused, 0, len(merged))
	for _, r := range merged {
		r.HybridScore = f.BM25Weight*r.BM25Norm + f.VectorWeight*r.VecNorm
		results = append(results, r)
	}

	sort.Slice(results, func(i, j int) bool {
		return compare(results[i], results[j])
	})

	return results
}

func getOrCreate(m map[string]*Fused, id string) *Fused {
	if r, ok := m[id]; ok {
		return r
	}
	r := &Fused{ID: id}
	m[id] = r
	return r
}

// compare returns true if a ranks before b.
//
// Priority:
//  1. Higher hybrid score
//  2. Better (lower) original lexical rank; absent ranks last
//  3. Better (lower) original vector rank
//  4. Lexicographically smaller ID (deterministic)
func compare(a, b *Fused) bool {
	if a.HybridScore != b.HybridScore {
		return a.HybridScore > b.HybridScore
	}
	if a.BM25Rank != b.BM25Rank {
		return rankBefore(a.BM25Rank, b.BM25Rank)
	}
	if a.VecRank != b.VecRank {
		return rankBefore(a.VecRank, b.VecRank)
	}
	return a.ID < b.ID
}

// rankBefore orders 1-indexed ranks ascending with 0 (absent) last.
func rankBefore(a, b int) bool {
	if a == 0 {
		return false
	}
	if b == 0 {
		return true
	}
	return a < b
}

func hitScores(hits []backend.Hit) []float64 {
	scores := make([]float64, len(hits))
	for i, h := range hits {
		scores[i] = h.Score
	}
	return scores
}

// normalizeScores min-max normalizes a channel's scores onto [0, 1].
// A channel that cannot discriminate (all scores equal) gets the neutral
// score for every document rather than an arbitrary 0 or 1.
func normalizeScores(scores []float64) []float64 {
	if len(scores) == 0 {
		return nil
	}

	min, max := scores[0], scores[0]
	for _, s := range scores[1:] {
		if s < min {
			min = s
		}
		if s > max {
			max = s
		}
	}

	norms := make([]float64, len(scores))
	if max == min {
		for i := range norms {
			norms[i] = neutralScore
		}
		return norms
	}

	spread := max - min
	for i, s := range scores {
		norms[i] = (s - min) / spread
	}
	return norms
}
