package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete Quorum configuration
type Config struct {
	Logging      LoggingConfig      `mapstructure:"logging"`
	Paths        PathsConfig        `mapstructure:"paths"`
	Store        StoreConfig        `mapstructure:"store"`
	Consensus    ConsensusConfig    `mapstructure:"consensus"`
	Pool         PoolConfig         `mapstructure:"pool"`
	LLM          LLMConfig          `mapstructure:"llm"`
	Notify       NotifyConfig       `mapstructure:"notify"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
}

// LoggingConfig controls log output
type LoggingConfig struct {
	// Level controls logging verbosity.
	// Options: "debug", "info", "warn", "error" (default: "info")
	Level string `mapstructure:"level"`

	// MaxSizeMB is the maximum size of the log file in megabytes before
	// rotation. 0 disables rotation. (default: 10)
	MaxSizeMB int `mapstructure:"max_size_mb"`

	// MaxBackups is the number of rotated log files to keep. (default: 3)
	MaxBackups int `mapstructure:"max_backups"`
}

// PathsConfig controls where Quorum stores its data
type PathsConfig struct {
	// DataDir is the directory for durable task context, message logs,
	// and the rotating log file. If empty, defaults to ~/.quorum.
	// Supports ~ expansion; relative paths resolve against the working
	// directory.
	DataDir string `mapstructure:"data_dir"`
}

// StoreConfig controls the task context store
type StoreConfig struct {
	// ArchiveAgeHours is how long a terminal (complete or failed) task
	// context stays in the hot index before Archive may evict it to the
	// durable layer only. (default: 24)
	ArchiveAgeHours int `mapstructure:"archive_age_hours"`

	// RehydrateCacheSize is the number of archived contexts kept in the
	// in-memory rehydration cache after a durable-layer read. (default: 128)
	RehydrateCacheSize int `mapstructure:"rehydrate_cache_size"`
}

// ConsensusConfig sets the defaults applied to new consensus sessions
type ConsensusConfig struct {
	// MaxRounds is the maximum number of propose/vote rounds before a
	// session deadlocks. (default: 3)
	MaxRounds int `mapstructure:"max_rounds"`

	// RequireUnanimity requires every participant to approve before a
	// revision reaches consensus. When false, a strict majority of
	// approvals suffices. (default: true)
	RequireUnanimity bool `mapstructure:"require_unanimity"`

	// EnableDiscussion inserts a discussion phase after a rejected vote,
	// collecting proposals from dissenters before the next revision.
	// (default: false)
	EnableDiscussion bool `mapstructure:"enable_discussion"`

	// VoteTimeoutSeconds is how long a round waits for all votes before
	// publishing an escalation event. 0 disables the timeout. (default: 0)
	VoteTimeoutSeconds int `mapstructure:"vote_timeout_seconds"`
}

// VoteTimeout returns the vote timeout as a time.Duration
func (c *ConsensusConfig) VoteTimeout() time.Duration {
	return time.Duration(c.VoteTimeoutSeconds) * time.Second
}

// PoolConfig controls the intern worker pool
type PoolConfig struct {
	// MaxConcurrent is the maximum number of interns generating at once.
	// Further spawns wait in FIFO order for a slot. (default: 5)
	MaxConcurrent int `mapstructure:"max_concurrent"`

	// MaxRetries is the number of generation attempts per intern before
	// the spawn fails. Only transient errors are retried. (default: 3)
	MaxRetries int `mapstructure:"max_retries"`

	// RetryBaseDelayMs is the initial backoff delay in milliseconds,
	// doubled after each failed attempt. (default: 500)
	RetryBaseDelayMs int `mapstructure:"retry_base_delay_ms"`

	// GracePeriodSeconds is how long a settled intern's record stays
	// queryable before eviction. (default: 120)
	GracePeriodSeconds int `mapstructure:"grace_period_seconds"`
}

// RetryBaseDelay returns the initial backoff delay as a time.Duration
func (c *PoolConfig) RetryBaseDelay() time.Duration {
	return time.Duration(c.RetryBaseDelayMs) * time.Millisecond
}

// GracePeriod returns the settled-intern grace period as a time.Duration
func (c *PoolConfig) GracePeriod() time.Duration {
	return time.Duration(c.GracePeriodSeconds) * time.Second
}

// LLMConfig controls the model endpoint and tier routing
type LLMConfig struct {
	// BaseURL is the OpenAI-compatible endpoint. A missing scheme
	// defaults to http and /v1 is appended if absent.
	BaseURL string `mapstructure:"base_url"`

	// APIKey is sent as a bearer token. May also be supplied via the
	// QUORUM_LLM_API_KEY environment variable.
	APIKey string `mapstructure:"api_key"`

	// TimeoutSeconds is the per-request timeout. (default: 120)
	TimeoutSeconds int `mapstructure:"timeout_seconds"`

	// Models maps capability tiers to concrete model identifiers.
	Models ModelTiersConfig `mapstructure:"models"`
}

// ModelTiersConfig maps capability tiers to model identifiers
type ModelTiersConfig struct {
	// Default handles general-purpose generation.
	Default string `mapstructure:"default"`

	// Fast handles cheap, latency-sensitive work such as summaries.
	Fast string `mapstructure:"fast"`

	// Reasoning handles review and analysis work.
	Reasoning string `mapstructure:"reasoning"`

	// Powerful handles the hardest tasks, such as code generation.
	Powerful string `mapstructure:"powerful"`
}

// NotifyConfig controls operator escalation
type NotifyConfig struct {
	// WebhookURL receives a JSON POST for each blocker escalation.
	// If empty, escalations are logged only.
	WebhookURL string `mapstructure:"webhook_url"`
}

// OrchestratorConfig controls orchestrator routing policy
type OrchestratorConfig struct {
	// AutoComplete completes a task when a dispatched agent's reply
	// carries no completion or query marker. When false, the reply is
	// recorded as an assertion and the task stays active. (default: true)
	AutoComplete bool `mapstructure:"auto_complete"`

	// HelperType is the intern profile spawned when a task stalls.
	// Options: "researcher", "coder", "reviewer", "summarizer"
	// (default: "researcher")
	HelperType string `mapstructure:"helper_type"`

	// StallMultiplier scales a task's time estimate to get the stall
	// deadline for progress monitoring. (default: 1.5)
	StallMultiplier float64 `mapstructure:"stall_multiplier"`
}

// ResolveDataDir returns the resolved data directory path.
// If DataDir is empty, it returns ~/.quorum.
// If DataDir starts with ~, it expands to the user's home directory.
func (p *PathsConfig) ResolveDataDir() string {
	path := p.DataDir
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ".quorum"
		}
		return filepath.Join(home, ".quorum")
	}

	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, path[2:])
		}
	} else if path == "~" {
		home, err := os.UserHomeDir()
		if err == nil {
			path = home
		}
	}

	return path
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
		Paths: PathsConfig{
			DataDir: "",
		},
		Store: StoreConfig{
			ArchiveAgeHours:    24,
			RehydrateCacheSize: 128,
		},
		Consensus: ConsensusConfig{
			MaxRounds:          3,
			RequireUnanimity:   true,
			EnableDiscussion:   false,
			VoteTimeoutSeconds: 0,
		},
		Pool: PoolConfig{
			MaxConcurrent:      5,
			MaxRetries:         3,
			RetryBaseDelayMs:   500,
			GracePeriodSeconds: 120,
		},
		LLM: LLMConfig{
			BaseURL:        "http://localhost:8000",
			APIKey:         "",
			TimeoutSeconds: 120,
			Models: ModelTiersConfig{
				Default:   "meta/llama-3.1-70b-instruct",
				Fast:      "microsoft/phi-3-mini-4k-instruct",
				Reasoning: "nvidia/nemotron-3-nano-30b-a3b",
				Powerful:  "meta/llama-3.1-405b-instruct",
			},
		},
		Notify: NotifyConfig{
			WebhookURL: "",
		},
		Orchestrator: OrchestratorConfig{
			AutoComplete:    true,
			HelperType:      "researcher",
			StallMultiplier: 1.5,
		},
	}
}

// SetDefaults registers all default values with viper.
// Call this before reading the config file so unset keys fall back.
func SetDefaults() {
	defaults := Default()

	// Logging defaults
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	viper.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)

	// Paths defaults
	viper.SetDefault("paths.data_dir", defaults.Paths.DataDir)

	// Store defaults
	viper.SetDefault("store.archive_age_hours", defaults.Store.ArchiveAgeHours)
	viper.SetDefault("store.rehydrate_cache_size", defaults.Store.RehydrateCacheSize)

	// Consensus defaults
	viper.SetDefault("consensus.max_rounds", defaults.Consensus.MaxRounds)
	viper.SetDefault("consensus.require_unanimity", defaults.Consensus.RequireUnanimity)
	viper.SetDefault("consensus.enable_discussion", defaults.Consensus.EnableDiscussion)
	viper.SetDefault("consensus.vote_timeout_seconds", defaults.Consensus.VoteTimeoutSeconds)

	// Pool defaults
	viper.SetDefault("pool.max_concurrent", defaults.Pool.MaxConcurrent)
	viper.SetDefault("pool.max_retries", defaults.Pool.MaxRetries)
	viper.SetDefault("pool.retry_base_delay_ms", defaults.Pool.RetryBaseDelayMs)
	viper.SetDefault("pool.grace_period_seconds", defaults.Pool.GracePeriodSeconds)

	// LLM defaults
	viper.SetDefault("llm.base_url", defaults.LLM.BaseURL)
	viper.SetDefault("llm.api_key", defaults.LLM.APIKey)
	viper.SetDefault("llm.timeout_seconds", defaults.LLM.TimeoutSeconds)
	viper.SetDefault("llm.models.default", defaults.LLM.Models.Default)
	viper.SetDefault("llm.models.fast", defaults.LLM.Models.Fast)
	viper.SetDefault("llm.models.reasoning", defaults.LLM.Models.Reasoning)
	viper.SetDefault("llm.models.powerful", defaults.LLM.Models.Powerful)

	// Notify defaults
	viper.SetDefault("notify.webhook_url", defaults.Notify.WebhookURL)

	// Orchestrator defaults
	viper.SetDefault("orchestrator.auto_complete", defaults.Orchestrator.AutoComplete)
	viper.SetDefault("orchestrator.helper_type", defaults.Orchestrator.HelperType)
	viper.SetDefault("orchestrator.stall_multiplier", defaults.Orchestrator.StallMultiplier)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration (convenience function)
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		// Fall back to defaults if unmarshaling fails
		return Default()
	}
	return cfg
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	// Check XDG_CONFIG_HOME first
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "quorum")
	}
	// Fall back to ~/.config/quorum
	home, err := os.UserHomeDir()
	if err != nil {
		return ".quorum"
	}
	return filepath.Join(home, ".config", "quorum")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}
