package backend

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/coder/hnsw"
)

// Embedded backend schema field names. Deliberately not the relay's
// canonical names: the field mapper resolves canonical names against these.
const (
	fieldRepo         = "repo"
	fieldPath         = "path"
	fieldLanguage     = "language"
	fieldContent      = "content"
	fieldSymbolName   = "symbol_name"
	fieldClassName    = "class_name"
	fieldSignature    = "signature"
	fieldStartLine    = "start_line"
	fieldEndLine      = "end_line"
	fieldDependencies = "dependencies"
)

// Document is a code fragment indexed into the embedded backend.
type Document struct {
	ID           string
	Repository   string
	FilePath     string
	Language     string
	Content      string
	FunctionName string
	ClassName    string
	Signature    string
	StartLine    int
	EndLine      int
	Dependencies []string
}

// EmbeddedConfig configures the embedded backend.
type EmbeddedConfig struct {
	// IndexPath is the on-disk bleve index location. Empty means in-memory.
	IndexPath string

	// Dimensions is the embedding dimension for the vector channel.
	Dimensions int

	// DisableExact makes LookupExact return ErrExactUnsupported,
	// exercising the relay's term-append fallback.
	DisableExact bool

	// DisableDiagnostics makes DetailedFeatures return
	// ErrFeaturesUnavailable, exercising the heuristic explainer fallback.
	DisableDiagnostics bool
}

// Embedded is an in-process search backend: bleve provides the lexical
// channel, an HNSW graph over hash embeddings provides the vector channel.
// It implements the full Backend contract including exact lookup and
// scoring diagnostics, so the relay can run without any managed service.
type Embedded struct {
	mu       sync.RWMutex
	index    bleve.Index
	graph    *hnsw.Graph[string]
	embedder *hashEmbedder
	config   EmbeddedConfig

	// docs and vecs mirror the index for field retrieval and diagnostics.
	docs map[string]map[string]any
	vecs map[string][]float32

	closed bool
}

var _ Backend = (*Embedded)(nil)

// NewEmbedded creates an embedded backend.
func NewEmbedded(cfg EmbeddedConfig) (*Embedded, error) {
	indexMapping := buildIndexMapping()

	var idx bleve.Index
	var err error
	if cfg.IndexPath == "" {
		idx, err = bleve.NewMemOnly(indexMapping)
	} else {
		idx, err = bleve.Open(cfg.IndexPath)
		if err == bleve.ErrorIndexPathDoesNotExist {
			idx, err = bleve.New(cfg.IndexPath, indexMapping)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open lexical index: %w", err)
	}

	graph := hnsw.NewGraph[string]()
	graph.Distance = hnsw.CosineDistance

	return &Embedded{
		index:    idx,
		graph:    graph,
		embedder: newHashEmbedder(cfg.Dimensions),
		config:   cfg,
		docs:     make(map[string]map[string]any),
		vecs:     make(map[string][]float32),
	}, nil
}

func buildIndexMapping() mapping.IndexMapping {
	textField := bleve.NewTextFieldMapping()

	keywordField := bleve.NewTextFieldMapping()
	keywordField.Analyzer = keyword.Name

	docMapping := bleve.NewDocumentMapping()
	docMapping.AddFieldMappingsAt(fieldContent, textField)
	docMapping.AddFieldMappingsAt(fieldSymbolName, textField)
	docMapping.AddFieldMappingsAt(fieldSignature, textField)
	docMapping.AddFieldMappingsAt(fieldRepo, keywordField)
	docMapping.AddFieldMappingsAt(fieldPath, keywordField)
	docMapping.AddFieldMappingsAt(fieldLanguage, keywordField)

	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultMapping = docMapping
	return indexMapping
}

// IndexDocuments adds documents to both channels.
func (e *Embedded) IndexDocuments(ctx context.Context, docs []*Document) error {
	if len(docs) == 0 {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return fmt.Errorf("backend is closed")
	}

	batch := e.index.NewBatch()
	for _, doc := range docs {
		fields := docFields(doc)
		if err := batch.Index(doc.ID, fields); err != nil {
			return fmt.Errorf("failed to index document %s: %w", doc.ID, err)
		}
		e.docs[doc.ID] = fields

		vec := e.embedder.Embed(doc.Content)
		e.graph.Add(hnsw.MakeNode(doc.ID, vec))
		e.vecs[doc.ID] = vec
	}

	if err := e.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to execute batch: %w", err)
	}

	return nil
}

func docFields(doc *Document) map[string]any {
	fields := map[string]any{
		fieldRepo:     doc.Repository,
		fieldPath:     doc.FilePath,
		fieldLanguage: doc.Language,
		fieldContent:  doc.Content,
	}
	if doc.FunctionName != "" {
		fields[fieldSymbolName] = doc.FunctionName
	}
	if doc.ClassName != "" {
		fields[fieldClassName] = doc.ClassName
	}
	if doc.Signature != "" {
		fields[fieldSignature] = doc.Signature
	}
	if doc.StartLine > 0 {
		fields[fieldStartLine] = doc.StartLine
		fields[fieldEndLine] = doc.EndLine
	}
	if len(doc.Dependencies) > 0 {
		fields[fieldDependencies] = doc.Dependencies
	}
	return fields
}

// Search executes one retrieval channel.
func (e *Embedded) Search(ctx context.Context, req SearchRequest) ([]Hit, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		return nil, fmt.Errorf("backend is closed")
	}

	if strings.TrimSpace(req.Query) == "" {
		return []Hit{}, nil
	}

	if req.WantVectors {
		return e.vectorSearch(req)
	}
	return e.lexicalSearch(ctx, req)
}

func (e *Embedded) lexicalSearch(ctx context.Context, req SearchRequest) ([]Hit, error) {
	matchQuery := bleve.NewMatchQuery(req.Query)
	matchQuery.SetField(fieldContent)

	boolQuery := bleve.NewBooleanQuery()
	boolQuery.AddMust(matchQuery)

	if req.Repository != "" {
		tq := bleve.NewTermQuery(req.Repository)
		tq.SetField(fieldRepo)
		boolQuery.AddMust(tq)
	}
	if req.Language != "" {
		tq := bleve.NewTermQuery(req.Language)
		tq.SetField(fieldLanguage)
		boolQuery.AddMust(tq)
	}
	if len(req.FileTypes) > 0 {
		disj := bleve.NewDisjunctionQuery()
		for _, ext := range req.FileTypes {
			wq := bleve.NewWildcardQuery("*" + strings.TrimPrefix(ext, "*"))
			wq.SetField(fieldPath)
			disj.AddQuery(wq)
		}
		boolQuery.AddMust(disj)
	}

	searchRequest := bleve.NewSearchRequest(boolQuery)
	searchRequest.Size = req.TopK

	result, err := e.index.SearchInContext(ctx, searchRequest)
	if err != nil {
		return nil, fmt.Errorf("lexical search failed: %w", err)
	}

	hits := make([]Hit, 0, len(result.Hits))
	for _, hit := range result.Hits {
		hits = append(hits, Hit{
			ID:     hit.ID,
			Score:  hit.Score,
			Fields: e.selectFields(hit.ID, req.SelectFields),
		})
	}
	return hits, nil
}

func (e *Embedded) vectorSearch(req SearchRequest) ([]Hit, error) {
	if e.graph.Len() == 0 {
		return []Hit{}, nil
	}

	queryVec := e.embedder.Embed(req.Query)

	// Overfetch so post-filtering by repository/language still fills TopK.
	fetch := req.TopK * 4
	if fetch < req.TopK {
		fetch = req.TopK
	}
	nodes := e.graph.Search(queryVec, fetch)

	hits := make([]Hit, 0, req.TopK)
	for _, node := range nodes {
		fields, ok := e.docs[node.Key]
		if !ok {
			continue
		}
		if !matchesFilters(fields, req) {
			continue
		}

		distance := e.graph.Distance(queryVec, node.Value)
		hits = append(hits, Hit{
			ID:     node.Key,
			Score:  float64(1 - distance),
			Fields: e.selectFields(node.Key, req.SelectFields),
		})
		if len(hits) >= req.TopK {
			break
		}
	}
	return hits, nil
}

func matchesFilters(fields map[string]any, req SearchRequest) bool {
	if req.Repository != "" && fields[fieldRepo] != req.Repository {
		return false
	}
	if req.Language != "" && fields[fieldLanguage] != req.Language {
		return false
	}
	if len(req.FileTypes) > 0 {
		path, _ := fields[fieldPath].(string)
		matched := false
		for _, ext := range req.FileTypes {
			if strings.HasSuffix(path, strings.TrimPrefix(ext, "*")) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	return true
}

// LookupExact retrieves documents containing every term verbatim.
// Matching bypasses analysis entirely: terms like "3.8.10" or quoted
// phrases must appear as-is in the content, path, or symbol name.
func (e *Embedded) LookupExact(ctx context.Context, req ExactRequest) ([]Hit, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		return nil, fmt.Errorf("backend is closed")
	}
	if e.config.DisableExact {
		return nil, ErrExactUnsupported
	}
	if len(req.Terms) == 0 {
		return []Hit{}, nil
	}

	type scored struct {
		id    string
		score float64
	}
	var matches []scored

	for id, fields := range e.docs {
		if req.Repository != "" && fields[fieldRepo] != req.Repository {
			continue
		}
		if req.Language != "" && fields[fieldLanguage] != req.Language {
			continue
		}

		content, _ := fields[fieldContent].(string)
		path, _ := fields[fieldPath].(string)
		symbol, _ := fields[fieldSymbolName].(string)

		occurrences := 0
		allPresent := true
		for _, term := range req.Terms {
			count := strings.Count(content, term) + strings.Count(path, term) + strings.Count(symbol, term)
			if count == 0 {
				allPresent = false
				break
			}
			occurrences += count
		}
		if allPresent {
			matches = append(matches, scored{id: id, score: float64(occurrences)})
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].score != matches[j].score {
			return matches[i].score > matches[j].score
		}
		return matches[i].id < matches[j].id
	})

	if req.TopK > 0 && len(matches) > req.TopK {
		matches = matches[:req.TopK]
	}

	hits := make([]Hit, 0, len(matches))
	for _, m := range matches {
		hits = append(hits, Hit{
			ID:     m.id,
			Score:  m.score,
			Fields: e.selectFields(m.id, nil),
		})
	}
	return hits, nil
}

// DetailedFeatures computes native scoring diagnostics: per-field query
// token coverage plus a vector-similarity reranker score.
func (e *Embedded) DetailedFeatures(ctx context.Context, queryText string, ids []string) (map[string]FeatureSet, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		return nil, fmt.Errorf("backend is closed")
	}
	if e.config.DisableDiagnostics {
		return nil, ErrFeaturesUnavailable
	}

	tokens := embedTokens(queryText)
	queryVec := e.embedder.Embed(queryText)

	features := make(map[string]FeatureSet, len(ids))
	for _, id := range ids {
		fields, ok := e.docs[id]
		if !ok {
			continue
		}

		fieldScores := make(map[string]float64)
		for _, name := range []string{fieldContent, fieldPath, fieldSymbolName} {
			value, _ := fields[name].(string)
			if value == "" {
				continue
			}
			fieldScores[name] = tokenCoverage(tokens, value)
		}

		fs := FeatureSet{FieldScores: fieldScores}
		if vec, ok := e.vecs[id]; ok {
			fs.RerankerScore = float64(1 - hnsw.CosineDistance(queryVec, vec))
			fs.HasReranker = true
		}
		features[id] = fs
	}
	return features, nil
}

// tokenCoverage returns the fraction of query tokens present in the value.
func tokenCoverage(tokens []string, value string) float64 {
	if len(tokens) == 0 {
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

// selectFields returns the stored fields for a document, limited to the
// requested backend field names when given.
func (e *Embedded) selectFields(id string, selected []string) map[string]any {
	fields, ok := e.docs[id]
	if !ok {
		return nil
	}
	if len(selected) == 0 {
		out := make(map[string]any, len(fields))
		for k, v := range fields {
			out[k] = v
		}
		return out
	}
	out := make(map[string]any, len(selected))
	for _, name := range selected {
		if v, ok := fields[name]; ok {
			out[name] = v
		}
	}
	return out
}

// SchemaFields lists the backend's schema field names.
func (e *Embedded) SchemaFields() []string {
	return []string{
		fieldRepo, fieldPath, fieldLanguage, fieldContent,
		fieldSymbolName, fieldClassName, fieldSignature,
		fieldStartLine, fieldEndLine, fieldDependencies,
	}
}

// Available reports whether the backend can serve requests.
func (e *Embedded) Available(ctx context.Context) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return !e.closed
}

// Close releases backend resources.
func (e *Embedded) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true
	return e.index.Close()
}
