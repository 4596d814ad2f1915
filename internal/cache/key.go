package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"
)

// Key identifies a cached search by every parameter that can change the
// result set. Anything not listed here must not affect results, or stale
// entries will be served for requests that should differ.
type Key struct {
	Query          string
	Intent         string
	Repository     string
	Language       string
	FileTypes      []string
	ExactTerms     []string
	MaxResults     int
	DependencyMode string
	LexicalOnly    bool
}

// Hash returns the canonical cache key. Slice parameters are sorted first
// so that term order, which does not affect results, does not fragment the
// cache. SHA256 keeps key length fixed for arbitrary query text.
func (k Key) Hash() string {
	parts := []string{
		k.Query,
		k.Intent,
		k.Repository,
		k.Language,
		joinSorted(k.FileTypes),
		joinSorted(k.ExactTerms),
		strconv.Itoa(k.MaxResults),
		k.DependencyMode,
		strconv.FormatBool(k.LexicalOnly),
	}
	hash := sha256.Sum256([]byte(strings.Join(parts, "\x00")))
	return hex.EncodeToString(hash[:])
}

func joinSorted(values []string) string {
	if len(values) == 0 {
		return ""
	}
	sorted := make([]string, len(values))
	copy(sorted, values)
	sort.Strings(sorted)
	return strings.Join(sorted, "\x1f")
}
