// Package cmd provides the CLI commands for searchrelay.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/searchrelay/searchrelay/internal/backend"
	"github.com/searchrelay/searchrelay/internal/config"
	"github.com/searchrelay/searchrelay/internal/corpus"
	"github.com/searchrelay/searchrelay/internal/logging"
	"github.com/searchrelay/searchrelay/internal/relay"
	"github.com/searchrelay/searchrelay/internal/telemetry"
	"github.com/searchrelay/searchrelay/pkg/version"
)

var debugMode bool

// NewRootCmd creates the root command for the searchrelay CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "searchrelay",
		Short: "Hybrid code search relay for AI coding assistants",
		Long: `searchrelay sits between AI coding assistants and a code search
backend. It fuses keyword and semantic retrieval, extracts exact-match
terms from natural queries, caches results, and expands dependency
graphs for ranked results.

Run 'searchrelay serve' in a project directory to start the MCP server.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.SetVersionTemplate("searchrelay version {{.Version}}\n")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newExplainCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	root := NewRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return err
	}
	return nil
}

// loggingConfig derives logging settings from config and flags.
func loggingConfig(cfg *config.Config, toStderr bool) logging.Config {
	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.Server.LogLevel
	if debugMode {
		logCfg.Level = "debug"
	}
	logCfg.WriteToStderr = toStderr
	return logCfg
}

// buildEngine assembles the full stack for the project directory:
// embedded backend with the project corpus, telemetry, and the engine.
// The returned cleanup closes everything in reverse order.
func buildEngine(ctx context.Context, dir string, cfg *config.Config, logger *slog.Logger) (*relay.Engine, func(), error) {
	be, err := backend.NewEmbedded(backend.EmbeddedConfig{
		IndexPath:  cfg.Backend.IndexPath,
		Dimensions: cfg.Backend.Dimensions,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open backend: %w", err)
	}

	docs, err := corpus.NewLoader(dir, "", logger).Load(ctx)
	if err != nil {
		_ = be.Close()
		return nil, nil, err
	}
	if err := be.IndexDocuments(ctx, docs); err != nil {
		_ = be.Close()
		return nil, nil, fmt.Errorf("failed to index corpus: %w", err)
	}

	metrics, metricsCleanup, err := buildTelemetry(cfg)
	if err != nil {
		_ = be.Close()
		return nil, nil, err
	}

	engine := relay.New(cfg, be, metrics, logger)
	cleanup := func() {
		_ = engine.Close()
		metricsCleanup()
		_ = be.Close()
	}
	return engine, cleanup, nil
}

func buildTelemetry(cfg *config.Config) (*telemetry.Collector, func(), error) {
	if !cfg.Telemetry.Enabled {
		return nil, func() {}, nil
	}

	var store telemetry.Store
	var closeStore func() error
	if cfg.Telemetry.DBPath != "" {
		s, err := telemetry.OpenSQLiteStore(cfg.Telemetry.DBPath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open telemetry store: %w", err)
		}
		store = s
		closeStore = s.Close
	}

	collector := telemetry.NewCollector(store)
	cleanup := func() {
		if closeStore != nil {
			_ = closeStore()
		}
	}
	return collector, cleanup, nil
}
