package hub

import (
	"time"

	"quorum/internal/config"
	"quorum/internal/consensus"
	"quorum/internal/intern"
	"quorum/internal/llm"
	"quorum/internal/logging"
	"quorum/internal/orchestrator"
)

// FromConfig builds a Hub from the application configuration. Extra
// options are applied after the config-derived ones, so callers may
// override any of them.
func FromConfig(cfg *config.Config, logger *logging.Logger, extra ...Option) (*Hub, error) {
	opts := []Option{
		WithPoolConfig(intern.Config{
			MaxConcurrent:  cfg.Pool.MaxConcurrent,
			MaxRetries:     cfg.Pool.MaxRetries,
			RetryBaseDelay: cfg.Pool.RetryBaseDelay(),
			GracePeriod:    cfg.Pool.GracePeriod(),
		}),
		WithConsensusDefaults(consensus.Config{
			MaxRounds:        cfg.Consensus.MaxRounds,
			RequireUnanimity: cfg.Consensus.RequireUnanimity,
			EnableDiscussion: cfg.Consensus.EnableDiscussion,
			VoteTimeout:      cfg.Consensus.VoteTimeout(),
		}),
		WithOrchestratorConfig(orchestrator.Config{
			AutoComplete: cfg.Orchestrator.AutoComplete,
			HelperType:   cfg.Orchestrator.HelperType,
		}),
		WithArchiveAge(time.Duration(cfg.Store.ArchiveAgeHours) * time.Hour),
		WithRehydrateCacheSize(cfg.Store.RehydrateCacheSize),
		WithStallMultiplier(cfg.Orchestrator.StallMultiplier),
	}
	opts = append(opts, extra...)

	return New(Config{
		DataDir: cfg.Paths.ResolveDataDir(),
		LLM: llm.Config{
			BaseURL:        cfg.LLM.BaseURL,
			APIKey:         cfg.LLM.APIKey,
			TimeoutSeconds: cfg.LLM.TimeoutSeconds,
			Models: llm.ModelTiers{
				Default:   cfg.LLM.Models.Default,
				Fast:      cfg.LLM.Models.Fast,
				Reasoning: cfg.LLM.Models.Reasoning,
				Powerful:  cfg.LLM.Models.Powerful,
			},
		},
		WebhookURL: cfg.Notify.WebhookURL,
		Logger:     logger,
	}, opts...)
}
