package corpus

import (
	"bufio"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// ignoreMatcher matches paths against gitignore-style patterns.
// It covers the common subset: comments, negation, directory-only
// patterns, anchoring, `*`, `?`, and `**`.
type ignoreMatcher struct {
	rules []ignoreRule
}

type ignoreRule struct {
	regex    *regexp.Regexp
	negation bool
	dirOnly  bool
}

func newIgnoreMatcher(patterns ...string) *ignoreMatcher {
	m := &ignoreMatcher{}
	for _, p := range patterns {
		m.add(p)
	}
	return m
}

func (m *ignoreMatcher) add(pattern string) {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" || strings.HasPrefix(pattern, "#") {
		return
	}

	var r ignoreRule
	if strings.HasPrefix(pattern, "!") {
		r.negation = true
		pattern = pattern[1:]
	}
	if strings.HasSuffix(pattern, "/") {
		r.dirOnly = true
		pattern = strings.TrimSuffix(pattern, "/")
	}

	// A slash anywhere but the end anchors the pattern to the root.
	anchored := strings.HasPrefix(pattern, "/") || strings.Contains(pattern, "/")
	pattern = strings.TrimPrefix(pattern, "/")

	expr := patternToRegex(pattern)
	if anchored {
		expr = "^" + expr
	} else {
		expr = "(^|/)" + expr
	}
	// A matching directory also covers everything beneath it. Dir-only
	// rules must see a slash, so a plain file never matches them.
	if r.dirOnly {
		expr += "/"
	} else {
		expr += "(/|$)"
	}

	r.regex = regexp.MustCompile(expr)
	m.rules = append(m.rules, r)
}

// addFromFile loads patterns from a gitignore file. A missing file is fine.
func (m *ignoreMatcher) addFromFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		m.add(scanner.Text())
	}
	return scanner.Err()
}

// match reports whether the slash-separated relative path is ignored.
// Later rules win, so negations can re-include earlier matches.
func (m *ignoreMatcher) match(relPath string, isDir bool) bool {
	relPath = filepath.ToSlash(relPath)
	probe := relPath
	if isDir {
		probe += "/"
	}

	ignored := false
	for _, r := range m.rules {
		target := relPath
		if r.dirOnly {
			target = probe
		}
		if r.regex.MatchString(target) {
			ignored = !r.negation
		}
	}
	return ignored
}

// patternToRegex translates a gitignore glob to a regular expression.
func patternToRegex(pattern string) string {
	var sb strings.Builder
	i := 0
	for i < len(pattern) {
		c := pattern[i]
		switch c {
		case '*':
			if strings.HasPrefix(pattern[i:], "**/") {
				sb.WriteString(`(.*/)?`)
				i += 3
				continue
			}
			if pattern[i:] == "**" {
				sb.WriteString(`.*`)
				i += 2
				continue
			}
			sb.WriteString(`[^/]*`)
		case '?':
			sb.WriteString(`[^/]`)
		default:
			sb.WriteString(regexp.QuoteMeta(string(c)))
		}
		i++
	}
	return sb.String()
}
