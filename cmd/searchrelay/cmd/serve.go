package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/searchrelay/searchrelay/internal/config"
	"github.com/searchrelay/searchrelay/internal/daemon"
	"github.com/searchrelay/searchrelay/internal/logging"
	mcpserver "github.com/searchrelay/searchrelay/internal/mcp"
)

func newServeCmd() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server over stdio",
		Long: `Start the relay as an MCP server. The project directory is indexed
into the embedded backend on startup, and the config file is watched
for changes while serving.

The MCP transport owns stdout, so all logging goes to the log file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), dir)
		},
	}

	cmd.Flags().StringVarP(&dir, "dir", "d", ".", "Project directory to index and serve")

	return cmd
}

func runServe(ctx context.Context, dir string) error {
	cfg, err := config.Load(dir)
	if err != nil {
		return err
	}

	// Stdout carries JSON-RPC exclusively. Nothing may log there, and
	// stderr stays quiet too so clients that merge streams see clean
	// protocol traffic.
	logCfg := loggingConfig(cfg, false)
	logger, logCleanup, err := logging.Setup(logCfg)
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	defer logCleanup()
	slog.SetDefault(logger)

	pidFile := daemon.NewPIDFile(cfg.Server.PIDFile)
	if err := pidFile.Acquire(); err != nil {
		if errors.Is(err, daemon.ErrAlreadyRunning) {
			return fmt.Errorf("%w (pid file: %s)", err, pidFile.Path())
		}
		return err
	}
	defer func() { _ = pidFile.Release() }()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine, cleanup, err := buildEngine(ctx, dir, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	srv, err := mcpserver.NewServer(engine, logger)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)

	watcher := config.NewWatcher(dir, engine.ReloadConfig)
	g.Go(func() error {
		err := watcher.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		defer stop()
		return srv.Serve(ctx, cfg.Server.Transport)
	})

	logger.Info("serving",
		slog.String("dir", dir),
		slog.String("transport", cfg.Server.Transport))

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
