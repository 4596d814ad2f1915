package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/searchrelay/searchrelay/internal/config"
	"github.com/searchrelay/searchrelay/internal/logging"
	"github.com/searchrelay/searchrelay/internal/output"
	"github.com/searchrelay/searchrelay/internal/query"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	dir         string
	limit       int
	intent      string
	language    string
	fileTypes   []string
	exactTerms  []string
	deps        string
	lexicalOnly bool
	format      string
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the project from the command line",
		Long: `Index the project directory and run one hybrid search against it.

Quoted phrases, snake_case and camelCase identifiers, version strings,
and file paths in the query are matched exactly.

Examples:
  searchrelay search "authentication middleware"
  searchrelay search "parse_json usage" --language go --limit 5
  searchrelay search "retry backoff" --deps graph
  searchrelay search "handleRequest" --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd.Context(), cmd, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.dir, "dir", "d", ".", "Project directory to search")
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 0, "Maximum number of results")
	cmd.Flags().StringVar(&opts.intent, "intent", "", "Search intent: implement, debug, understand, refactor")
	cmd.Flags().StringVarP(&opts.language, "language", "l", "", "Filter by language (e.g. go, python)")
	cmd.Flags().StringSliceVarP(&opts.fileTypes, "type", "t", nil, "Filter by file extension (repeatable)")
	cmd.Flags().StringSliceVarP(&opts.exactTerms, "exact", "e", nil, "Additional exact-match terms (repeatable)")
	cmd.Flags().StringVar(&opts.deps, "deps", "", "Dependency expansion: never, auto, always, graph")
	cmd.Flags().BoolVar(&opts.lexicalOnly, "lexical-only", false, "Keyword channel only (skip semantic retrieval)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, queryText string, opts searchOptions) error {
	cfg, err := config.Load(opts.dir)
	if err != nil {
		return err
	}

	logger, logCleanup, err := logging.Setup(loggingConfig(cfg, debugMode))
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	defer logCleanup()

	engine, cleanup, err := buildEngine(ctx, opts.dir, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	resp, err := engine.SearchCode(ctx, query.SearchQuery{
		Query:          queryText,
		Intent:         query.Intent(opts.intent),
		Language:       opts.language,
		FileTypes:      opts.fileTypes,
		MaxResults:     opts.limit,
		ExactTerms:     opts.exactTerms,
		DependencyMode: query.DependencyMode(opts.deps),
		NoCache:        true, // one-shot process, caching buys nothing
		LexicalOnly:    opts.lexicalOnly,
	})
	if err != nil {
		return err
	}

	if opts.format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}

	output.NewRenderer(cmd.OutOrStdout()).RenderResults(resp)
	return nil
}
