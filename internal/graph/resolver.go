// Package graph expands a primary search result into a bounded directed
// graph of call dependencies resolved through the search backend.
package graph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/searchrelay/searchrelay/internal/backend"
	"github.com/searchrelay/searchrelay/internal/schema"
)

// Node kinds.
const (
	KindPrimary    = "primary"
	KindDependency = "dependency"
)

// RelationCalls is the only edge relation produced today.
const RelationCalls = "calls"

// Bounds applied when the configured values are unusable.
const (
	DefaultMaxNodes        = 25
	DefaultMaxDepth        = 3
	DefaultLookupCacheSize = 512
)

// Node is one symbol in the dependency graph.
type Node struct {
	ID           string `json:"id"`
	Kind         string `json:"kind"`
	FunctionName string `json:"function_name"`
	FilePath     string `json:"file_path"`
	Repository   string `json:"repository,omitempty"`
}

// Edge is a directed call relationship between two nodes.
type Edge struct {
	From     string `json:"from"`
	To       string `json:"to"`
	Relation string `json:"relation"`
}

// Graph is the assembled dependency graph for one primary result.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`

	// Truncated is set when a bound stopped expansion early.
	Truncated bool `json:"truncated,omitempty"`
}

// Seed is the primary result the graph is rooted at.
type Seed struct {
	FilePath     string
	FunctionName string
	Repository   string
	Language     string
	Dependencies []string
}

// Config bounds expansion.
type Config struct {
	MaxNodes        int
	MaxDepth        int
	LookupCacheSize int
}

func (c Config) withDefaults() Config {
	if c.MaxNodes <= 0 {
		c.MaxNodes = DefaultMaxNodes
	}
	if c.MaxDepth <= 0 {
		c.MaxDepth = DefaultMaxDepth
	}
	if c.LookupCacheSize <= 0 {
		c.LookupCacheSize = DefaultLookupCacheSize
	}
	return c
}

// lookupKey scopes definition memoization: the same symbol name can
// resolve differently per repository and language.
type lookupKey struct {
	name       string
	repository string
	language   string
}

// definition is a memoized resolution outcome. found=false entries are
// kept too so missing symbols are not re-queried on every request.
type definition struct {
	filePath     string
	functionName string
	repository   string
	dependencies []string
	found        bool
}

// Resolver expands dependency names into a graph via per-symbol
// definition lookups. Lookups are memoized in a bounded LRU so repeated
// symbols across requests cost one backend call, not many.
type Resolver struct {
	backend backend.Backend
	mapper  *schema.Mapper
	lookups *lru.Cache[lookupKey, definition]
	config  Config
	logger  *slog.Logger
}

// NewResolver creates a resolver over the given backend and schema.
func NewResolver(be backend.Backend, mapper *schema.Mapper, cfg Config, logger *slog.Logger) *Resolver {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	lookups, _ := lru.New[lookupKey, definition](cfg.LookupCacheSize)
	return &Resolver{
		backend: be,
		mapper:  mapper,
		lookups: lookups,
		config:  cfg,
		logger:  logger,
	}
}

// Resolve builds the dependency graph for the seed. Depth is 1 unless
// deep is set, in which case expansion continues to the configured
// bounds. Visited (file_path, function_name) pairs are never re-expanded,
// so call cycles terminate.
func (r *Resolver) Resolve(ctx context.Context, seed Seed, deep bool) (*Graph, error) {
	if len(seed.Dependencies) == 0 {
		return nil, nil
	}

	maxDepth := 1
	if deep {
		maxDepth = r.config.MaxDepth
	}

	g := &Graph{}
	visited := make(map[string]bool)

	primary := Node{
		ID:           nodeID(seed.FilePath, seed.FunctionName),
		Kind:         KindPrimary,
		FunctionName: seed.FunctionName,
		FilePath:     seed.FilePath,
		Repository:   seed.Repository,
	}
	g.Nodes = append(g.Nodes, primary)
	visited[primary.ID] = true

	type frame struct {
		from  Node
		deps  []string
		depth int
	}
	queue := []frame{{from: primary, deps: seed.Dependencies, depth: 1}}

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return g, err
		}

		f := queue[0]
		queue = queue[1:]

		for _, name := range f.deps {
			if len(g.Nodes) >= r.config.MaxNodes {
				g.Truncated = true
				return g, nil
			}

			def, err := r.lookupDefinition(ctx, name, seed.Repository, seed.Language)
			if err != nil {
				return g, err
			}
			if !def.found {
				// Unresolvable symbols are omitted, never an error.
				continue
			}

			id := nodeID(def.filePath, def.functionName)
			if !visited[id] {
				visited[id] = true
				node := Node{
					ID:           id,
					Kind:         KindDependency,
					FunctionName: def.functionName,
					FilePath:     def.filePath,
					Repository:   def.repository,
				}
				g.Nodes = append(g.Nodes, node)

				if f.depth < maxDepth && len(def.dependencies) > 0 {
					queue = append(queue, frame{from: node, deps: def.dependencies, depth: f.depth + 1})
				}
			}

			g.Edges = append(g.Edges, Edge{
				From:     f.from.ID,
				To:       id,
				Relation: RelationCalls,
			})
		}
	}

	return g, nil
}

// lookupDefinition resolves a symbol name to its defining document.
// The exact-match path is preferred; backends without it fall back to a
// plain relevance search on the symbol name.
func (r *Resolver) lookupDefinition(ctx context.Context, name, repository, language string) (definition, error) {
	key := lookupKey{name: name, repository: repository, language: language}
	if def, ok := r.lookups.Get(key); ok {
		return def, nil
	}

	hits, err := r.backend.LookupExact(ctx, backend.ExactRequest{
		Query:      name,
		Terms:      []string{name},
		Repository: repository,
		Language:   language,
		TopK:       1,
	})
	if errors.Is(err, backend.ErrExactUnsupported) {
		hits, err = r.backend.Search(ctx, backend.SearchRequest{
			Query:      name,
			Repository: repository,
			Language:   language,
			TopK:       1,
		})
	}
	if err != nil {
		return definition{}, fmt.Errorf("dependency lookup for %q failed: %w", name, err)
	}

	def := definition{}
	if len(hits) > 0 {
		fields := hits[0].Fields
		def = definition{
			filePath:     r.mapper.GetString(fields, schema.FieldFilePath, ""),
			functionName: r.mapper.GetString(fields, schema.FieldFunctionName, name),
			repository:   r.mapper.GetString(fields, schema.FieldRepository, repository),
			dependencies: r.mapper.GetStringSlice(fields, schema.FieldDependencies),
			found:        true,
		}
	} else {
		r.logger.Debug("dependency definition not found", "symbol", name)
	}

	r.lookups.Add(key, def)
	return def, nil
}

func nodeID(filePath, functionName string) string {
	if functionName == "" {
		return filePath
	}
	return filePath + "#" + functionName
}
