// Package schema maps canonical field names onto whatever names the search
// backend's schema actually exposes. The mapper is built once per backend
// schema and is immutable afterwards, so it needs no synchronization.
package schema

import "sort"

// Canonical field names used throughout the relay.
const (
	FieldRepository   = "repository"
	FieldFilePath     = "file_path"
	FieldLanguage     = "language"
	FieldContent      = "content"
	FieldFunctionName = "function_name"
	FieldClassName    = "class_name"
	FieldSignature    = "signature"
	FieldStartLine    = "start_line"
	FieldEndLine      = "end_line"
	FieldDependencies = "dependencies"
)

// synonyms lists, per canonical name, the backend field names it may appear
// under. Order matters: the first name present in the schema wins.
var synonyms = map[string][]string{
	FieldRepository:   {"repository", "repo", "repo_name", "repository_name"},
	FieldFilePath:     {"file_path", "path", "filepath", "file"},
	FieldLanguage:     {"language", "lang", "programming_language"},
	FieldContent:      {"content", "code", "code_snippet", "snippet", "text"},
	FieldFunctionName: {"function_name", "function", "func_name", "symbol_name"},
	FieldClassName:    {"class_name", "class", "type_name"},
	FieldSignature:    {"signature", "func_signature"},
	FieldStartLine:    {"start_line", "line_start", "start"},
	FieldEndLine:      {"end_line", "line_end", "end"},
	FieldDependencies: {"dependencies", "deps", "calls", "imports"},
}

// requiredFields must resolve for results to be fully usable. Missing fields
// do not fail lookups; callers decide how to degrade.
var requiredFields = []string{FieldRepository, FieldFilePath, FieldLanguage, FieldContent}

// Mapper resolves canonical field names to the backend's actual names.
type Mapper struct {
	actual map[string]string // canonical -> backend field name
}

// Validation reports whether the backend schema exposes every required field.
type Validation struct {
	Valid   bool
	Missing []string
}

// NewMapper builds a mapper from the set of field names present in the
// backend schema.
func NewMapper(schemaFields []string) *Mapper {
	present := make(map[string]bool, len(schemaFields))
	for _, f := range schemaFields {
		present[f] = true
	}

	actual := make(map[string]string, len(synonyms))
	for canonical, candidates := range synonyms {
		for _, name := range candidates {
			if present[name] {
				actual[canonical] = name
				break
			}
		}
	}

	return &Mapper{actual: actual}
}

// Resolve returns the backend field name for a canonical name.
// The second return is false when the schema has no match.
func (m *Mapper) Resolve(canonical string) (string, bool) {
	name, ok := m.actual[canonical]
	return name, ok
}

// Get resolves canonical through the map and returns the document's value,
// or def when either the mapping or the field value is absent. It never fails.
func (m *Mapper) Get(doc map[string]any, canonical string, def any) any {
	name, ok := m.actual[canonical]
	if !ok {
		return def
	}
	v, ok := doc[name]
	if !ok || v == nil {
		return def
	}
	return v
}

// GetString is Get with a string assertion; non-string values fall back to def.
func (m *Mapper) GetString(doc map[string]any, canonical, def string) string {
	v := m.Get(doc, canonical, def)
	if s, ok := v.(string); ok {
		return s
	}
	return def
}

// GetInt is Get with numeric coercion; JSON decoding yields float64.
func (m *Mapper) GetInt(doc map[string]any, canonical string, def int) int {
	switch v := m.Get(doc, canonical, def).(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return def
	}
}

// GetStringSlice is Get for list-valued fields such as dependencies.
func (m *Mapper) GetStringSlice(doc map[string]any, canonical string) []string {
	switch v := m.Get(doc, canonical, nil).(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// SelectList returns the minimal backend field list covering every canonical
// field the schema knows, keeping retrieval payloads small. The list is
// sorted for deterministic request signatures.
func (m *Mapper) SelectList() []string {
	fields := make([]string, 0, len(m.actual))
	for _, name := range m.actual {
		fields = append(fields, name)
	}
	sort.Strings(fields)
	return fields
}

// ValidateRequired checks the schema against the fixed required field set.
func (m *Mapper) ValidateRequired() Validation {
	var missing []string
	for _, canonical := range requiredFields {
		if _, ok := m.actual[canonical]; !ok {
			missing = append(missing, canonical)
		}
	}
	return Validation{
		Valid:   len(missing) == 0,
		Missing: missing,
	}
}
