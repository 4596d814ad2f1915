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
	"github.com/searchrelay/searchrelay/internal/rank"
)

func newExplainCmd() *cobra.Command {
	var dir string
	var limit int
	var mode string
	var language string
	var format string

	cmd := &cobra.Command{
		Use:   "explain <query>",
		Short: "Explain why results rank where they do",
		Long: `Run a search and print per-result ranking factor breakdowns.

Factors come from backend scoring diagnostics when available, with a
heuristic fallback computed locally.

Examples:
  searchrelay explain "authentication middleware"
  searchrelay explain "parse json" --mode heuristic`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExplain(cmd.Context(), cmd, strings.Join(args, " "),
				dir, limit, mode, language, format)
		},
	}

	cmd.Flags().StringVarP(&dir, "dir", "d", ".", "Project directory to search")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum number of results to explain")
	cmd.Flags().StringVarP(&mode, "mode", "m", rank.ExplainModeAuto, "Explanation mode: auto, backend, heuristic")
	cmd.Flags().StringVarP(&language, "language", "l", "", "Filter by language")
	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format: text, json")

	return cmd
}

func runExplain(ctx context.Context, cmd *cobra.Command, queryText, dir string, limit int, mode, language, format string) error {
	cfg, err := config.Load(dir)
	if err != nil {
		return err
	}

	logger, logCleanup, err := logging.Setup(loggingConfig(cfg, debugMode))
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	defer logCleanup()

	engine, cleanup, err := buildEngine(ctx, dir, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	explanations, err := engine.ExplainRanking(ctx, query.SearchQuery{
		Query:      queryText,
		Language:   language,
		MaxResults: limit,
	}, mode)
	if err != nil {
		return err
	}

	if format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(explanations)
	}

	output.NewRenderer(cmd.OutOrStdout()).RenderExplanations(explanations)
	return nil
}
