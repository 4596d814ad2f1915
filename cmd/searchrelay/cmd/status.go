package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/searchrelay/searchrelay/internal/config"
	"github.com/searchrelay/searchrelay/internal/daemon"
	"github.com/searchrelay/searchrelay/internal/logging"
	"github.com/searchrelay/searchrelay/internal/output"
)

func newStatusCmd() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show backend health and server state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd, dir)
		},
	}

	cmd.Flags().StringVarP(&dir, "dir", "d", ".", "Project directory")

	return cmd
}

func runStatus(cmd *cobra.Command, dir string) error {
	cfg, err := config.Load(dir)
	if err != nil {
		return err
	}

	logger, logCleanup, err := logging.Setup(loggingConfig(cfg, debugMode))
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	defer logCleanup()

	r := output.NewRenderer(cmd.OutOrStdout())

	pidFile := daemon.NewPIDFile(cfg.Server.PIDFile)
	if pidFile.IsRunning() {
		pid, _ := pidFile.Read()
		fmt.Fprintf(cmd.OutOrStdout(), "Server running (pid %d)\n\n", pid)
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "Server not running\n\n")
	}

	ctx := cmd.Context()
	engine, cleanup, err := buildEngine(ctx, dir, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	r.RenderStatus(engine.Status(ctx))
	fmt.Fprintln(cmd.OutOrStdout())
	r.RenderCacheStats(engine.CacheStats())
	return nil
}
