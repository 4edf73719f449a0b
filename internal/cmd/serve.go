package cmd

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"quorum/internal/config"
	"quorum/internal/hub"
	"quorum/internal/logging"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a coordination hub",
	Long: `Run a coordination hub until interrupted.

The hub wires the event bus, durable task store, consensus engine,
orchestrator, and intern pool for a single coordination domain.
Configuration changes on disk are picked up without a restart.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(cfg.Paths.ResolveDataDir(), logging.ParseLevel(cfg.Logging.Level), logging.RotationConfig{
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer func() { _ = logger.Close() }()

	h, err := hub.FromConfig(cfg, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := h.Start(ctx); err != nil {
		return err
	}
	logger.Info("hub started", "data_dir", cfg.Paths.ResolveDataDir())
	fmt.Fprintln(cmd.OutOrStdout(), "quorum hub running (ctrl-c to stop)")

	// Log config rewrites; a hub restart is required to apply structural
	// changes, but operators can see what will take effect.
	config.Watch(func(next *config.Config) {
		logger.Info("configuration reloaded",
			"log_level", next.Logging.Level,
			"pool_max_concurrent", next.Pool.MaxConcurrent)
	})

	<-ctx.Done()
	logger.Info("shutting down")
	return h.Stop()
}
