package query

import (
	"regexp"
	"strings"
)

// Fuzzy and semantic retrieval commonly mishandle punctuation-bearing or
// case-sensitive identifiers, so the extractor pulls literal terms out of
// free text and forces them to match verbatim.
//
// Extraction rules, applied in order, deduplicated into one ordered set:
//  1. quoted substrings (single or double quotes), verbatim
//  2. dotted version numbers and bare numbers of two or more digits
//  3. identifiers immediately followed by '('
//  4. camelCase tokens
//  5. snake_case tokens
var (
	quotedRe    = regexp.MustCompile(`"([^"]+)"|'([^']+)'`)
	versionRe   = regexp.MustCompile(`\d+(?:\.\d+)+`)
	bareNumRe   = regexp.MustCompile(`\b\d{2,}\b`)
	funcCallRe  = regexp.MustCompile(`([A-Za-z_][A-Za-z0-9_]*)\(`)
	camelCaseRe = regexp.MustCompile(`\b[a-z]+[A-Z][A-Za-z0-9]*\b`)
	snakeCaseRe = regexp.MustCompile(`\b[a-z][a-z0-9]*(?:_[a-z0-9]+)+\b`)
)

// backend boolean syntax; terms containing these cannot be passed through
const rejectedChars = "()&|!^"

// ExtractExactTerms derives exact-match terms from a free-text query.
// The result preserves first-occurrence order and contains no duplicates.
func ExtractExactTerms(text string) []string {
	var terms []string
	seen := make(map[string]bool)

	add := func(term string) {
		term = sanitizeTerm(term)
		if term == "" || seen[term] {
			return
		}
		seen[term] = true
		terms = append(terms, term)
	}

	// Rule 1: quoted substrings
	for _, m := range quotedRe.FindAllStringSubmatch(text, -1) {
		if m[1] != "" {
			add(m[1])
		} else {
			add(m[2])
		}
	}

	// Rule 2: version numbers, then bare numbers outside version spans
	versionSpans := versionRe.FindAllStringIndex(text, -1)
	for _, span := range versionSpans {
		add(text[span[0]:span[1]])
	}
	for _, span := range bareNumRe.FindAllStringIndex(text, -1) {
		if overlapsAny(span, versionSpans) {
			continue
		}
		add(text[span[0]:span[1]])
	}

	// Rule 3: function-call mentions
	for _, m := range funcCallRe.FindAllStringSubmatch(text, -1) {
		add(m[1])
	}

	// Rule 4: camelCase tokens
	for _, m := range camelCaseRe.FindAllString(text, -1) {
		add(m)
	}

	// Rule 5: snake_case tokens
	for _, m := range snakeCaseRe.FindAllString(text, -1) {
		add(m)
	}

	return terms
}

// sanitizeTerm trims whitespace and rejects terms that would be significant
// to the backend's boolean query syntax. Returns "" for rejected terms.
func sanitizeTerm(term string) string {
	term = strings.TrimSpace(term)
	if term == "" {
		return ""
	}
	if strings.ContainsAny(term, rejectedChars) {
		return ""
	}
	return term
}

// MergeExactTerms combines caller-supplied and extracted terms into one
// ordered set, caller terms first.
func MergeExactTerms(supplied, extracted []string) []string {
	var merged []string
	seen := make(map[string]bool)
	for _, list := range [][]string{supplied, extracted} {
		for _, term := range list {
			term = sanitizeTerm(term)
			if term == "" || seen[term] {
				continue
			}
			seen[term] = true
			merged = append(merged, term)
		}
	}
	return merged
}

// AppendTermsToQuery implements the fallback tier of exact matching: when
// the backend rejects or lacks a native exact predicate, each term is
// appended to the free-text query, double-quoting terms that contain
// whitespace. Precision is traded for availability across backend versions.
func AppendTermsToQuery(text string, terms []string) string {
	if len(terms) == 0 {
		return text
	}

	var b strings.Builder
	b.WriteString(text)
	for _, term := range terms {
		b.WriteByte(' ')
		if strings.ContainsAny(term, " \t") {
			b.WriteByte('"')
			b.WriteString(term)
			b.WriteByte('"')
		} else {
			b.WriteString(term)
		}
	}
	return b.String()
}

func overlapsAny(span []int, spans [][]int) bool {
	for _, s := range spans {
		if span[0] < s[1] && s[0] < span[1] {
			return true
		}
	}
	return false
}
