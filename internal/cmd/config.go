package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"quorum/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or validate Quorum configuration",
	Long: `View or validate Quorum configuration.

Without arguments, displays the current configuration.`,
	RunE: runConfigShow,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE:  runConfigShow,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the current configuration",
	Long: `Validate the current configuration, listing every invalid value.

Exits non-zero if any setting is out of range, so it is suitable for
pre-deploy checks.`,
	RunE: runConfigValidate,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show the config file path",
	RunE:  runConfigPath,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)
	configCmd.AddCommand(configPathCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg := config.Get()
	out := cmd.OutOrStdout()

	fmt.Fprintln(out, "Current configuration:")
	fmt.Fprintln(out)

	// Show where config is being read from
	if viper.ConfigFileUsed() != "" {
		fmt.Fprintf(out, "Config file: %s\n", viper.ConfigFileUsed())
	} else {
		fmt.Fprintf(out, "Config file: (none - using defaults)\n")
	}
	fmt.Fprintln(out)

	fmt.Fprintln(out, "logging:")
	fmt.Fprintf(out, "  level: %s\n", cfg.Logging.Level)
	fmt.Fprintf(out, "  max_size_mb: %d\n", cfg.Logging.MaxSizeMB)
	fmt.Fprintf(out, "  max_backups: %d\n", cfg.Logging.MaxBackups)

	fmt.Fprintln(out, "paths:")
	fmt.Fprintf(out, "  data_dir: %s\n", cfg.Paths.ResolveDataDir())

	fmt.Fprintln(out, "store:")
	fmt.Fprintf(out, "  archive_age_hours: %d\n", cfg.Store.ArchiveAgeHours)
	fmt.Fprintf(out, "  rehydrate_cache_size: %d\n", cfg.Store.RehydrateCacheSize)

	fmt.Fprintln(out, "consensus:")
	fmt.Fprintf(out, "  max_rounds: %d\n", cfg.Consensus.MaxRounds)
	fmt.Fprintf(out, "  require_unanimity: %v\n", cfg.Consensus.RequireUnanimity)
	fmt.Fprintf(out, "  enable_discussion: %v\n", cfg.Consensus.EnableDiscussion)
	fmt.Fprintf(out, "  vote_timeout_seconds: %d\n", cfg.Consensus.VoteTimeoutSeconds)

	fmt.Fprintln(out, "pool:")
	fmt.Fprintf(out, "  max_concurrent: %d\n", cfg.Pool.MaxConcurrent)
	fmt.Fprintf(out, "  max_retries: %d\n", cfg.Pool.MaxRetries)
	fmt.Fprintf(out, "  retry_base_delay_ms: %d\n", cfg.Pool.RetryBaseDelayMs)
	fmt.Fprintf(out, "  grace_period_seconds: %d\n", cfg.Pool.GracePeriodSeconds)

	fmt.Fprintln(out, "llm:")
	fmt.Fprintf(out, "  base_url: %s\n", cfg.LLM.BaseURL)
	fmt.Fprintf(out, "  timeout_seconds: %d\n", cfg.LLM.TimeoutSeconds)
	fmt.Fprintf(out, "  models.default: %s\n", cfg.LLM.Models.Default)
	fmt.Fprintf(out, "  models.fast: %s\n", cfg.LLM.Models.Fast)
	fmt.Fprintf(out, "  models.reasoning: %s\n", cfg.LLM.Models.Reasoning)
	fmt.Fprintf(out, "  models.powerful: %s\n", cfg.LLM.Models.Powerful)

	fmt.Fprintln(out, "notify:")
	if cfg.Notify.WebhookURL != "" {
		fmt.Fprintf(out, "  webhook_url: %s\n", cfg.Notify.WebhookURL)
	} else {
		fmt.Fprintf(out, "  webhook_url: (none - escalations are logged)\n")
	}

	fmt.Fprintln(out, "orchestrator:")
	fmt.Fprintf(out, "  auto_complete: %v\n", cfg.Orchestrator.AutoComplete)
	fmt.Fprintf(out, "  helper_type: %s\n", cfg.Orchestrator.HelperType)
	fmt.Fprintf(out, "  stall_multiplier: %g\n", cfg.Orchestrator.StallMultiplier)

	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	var cfg config.Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return err
	}

	errs := cfg.Validate()
	if len(errs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "configuration is valid")
		return nil
	}

	for _, e := range errs {
		fmt.Fprintf(cmd.ErrOrStderr(), "invalid: %s\n", e.Error())
	}
	return fmt.Errorf("%d invalid configuration value(s)", len(errs))
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	if used := viper.ConfigFileUsed(); used != "" {
		fmt.Fprintln(cmd.OutOrStdout(), used)
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout(), config.ConfigFile())
	return nil
}
