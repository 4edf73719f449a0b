package hub

import (
	"time"

	"quorum/internal/consensus"
	"quorum/internal/intern"
	"quorum/internal/llm"
	"quorum/internal/notify"
	"quorum/internal/orchestrator"
)

// hubConfig holds optional configuration for a Hub.
type hubConfig struct {
	generator          llm.Generator
	notifier           notify.Notifier
	poolConfig         intern.Config
	orchConfig         orchestrator.Config
	consensusDefaults  consensus.Config
	archiveAge         time.Duration
	rehydrateCacheSize int
	sweepInterval      time.Duration
	stallMultiplier    float64
}

// Option configures a Hub.
type Option func(*hubConfig)

// WithGenerator sets the generator used for agent and intern work.
// If nil is not supplied, a client is built from Config.LLM.
func WithGenerator(g llm.Generator) Option {
	return func(c *hubConfig) { c.generator = g }
}

// WithNotifier sets the escalation notifier, overriding the webhook or
// log notifier selected from Config.
func WithNotifier(n notify.Notifier) Option {
	return func(c *hubConfig) { c.notifier = n }
}

// WithPoolConfig sets the intern pool limits and retry policy.
func WithPoolConfig(cfg intern.Config) Option {
	return func(c *hubConfig) { c.poolConfig = cfg }
}

// WithOrchestratorConfig sets the orchestrator routing policy.
func WithOrchestratorConfig(cfg orchestrator.Config) Option {
	return func(c *hubConfig) { c.orchConfig = cfg }
}

// WithConsensusDefaults sets the session defaults used by NewSession.
func WithConsensusDefaults(cfg consensus.Config) Option {
	return func(c *hubConfig) { c.consensusDefaults = cfg }
}

// WithArchiveAge sets how long a terminal context stays in the hot index.
func WithArchiveAge(d time.Duration) Option {
	return func(c *hubConfig) { c.archiveAge = d }
}

// WithRehydrateCacheSize sets the store's rehydration cache capacity.
func WithRehydrateCacheSize(n int) Option {
	return func(c *hubConfig) { c.rehydrateCacheSize = n }
}

// WithSweepInterval sets how often the archival sweeper runs.
func WithSweepInterval(d time.Duration) Option {
	return func(c *hubConfig) {
		if d > 0 {
			c.sweepInterval = d
		}
	}
}

// WithStallMultiplier sets the estimate multiplier used by MonitorTask.
// Values below 1 are ignored.
func WithStallMultiplier(f float64) Option {
	return func(c *hubConfig) {
		if f >= 1 {
			c.stallMultiplier = f
		}
	}
}
