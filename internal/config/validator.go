package config

import (
	"fmt"
	"net/url"
	"slices"
	"strings"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "pool.max_concurrent")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// ValidHelperTypes returns the intern profiles accepted for
// orchestrator.helper_type
func ValidHelperTypes() []string {
	return []string{"researcher", "coder", "reviewer", "summarizer"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateLogging()...)
	errors = append(errors, c.validateStore()...)
	errors = append(errors, c.validateConsensus()...)
	errors = append(errors, c.validatePool()...)
	errors = append(errors, c.validateLLM()...)
	errors = append(errors, c.validateNotify()...)
	errors = append(errors, c.validateOrchestrator()...)

	return errors
}

// validateLogging validates the LoggingConfig
func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), strings.ToLower(c.Logging.Level)) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}
	if c.Logging.MaxSizeMB < 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: "must be non-negative",
		})
	}
	if c.Logging.MaxBackups < 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_backups",
			Value:   c.Logging.MaxBackups,
			Message: "must be non-negative",
		})
	}

	return errors
}

// validateStore validates the StoreConfig
func (c *Config) validateStore() []ValidationError {
	var errors []ValidationError

	if c.Store.ArchiveAgeHours < 0 {
		errors = append(errors, ValidationError{
			Field:   "store.archive_age_hours",
			Value:   c.Store.ArchiveAgeHours,
			Message: "must be non-negative",
		})
	}
	if c.Store.RehydrateCacheSize < 0 {
		errors = append(errors, ValidationError{
			Field:   "store.rehydrate_cache_size",
			Value:   c.Store.RehydrateCacheSize,
			Message: "must be non-negative",
		})
	}

	return errors
}

// validateConsensus validates the ConsensusConfig
func (c *Config) validateConsensus() []ValidationError {
	var errors []ValidationError

	if c.Consensus.MaxRounds < 1 {
		errors = append(errors, ValidationError{
			Field:   "consensus.max_rounds",
			Value:   c.Consensus.MaxRounds,
			Message: "must be at least 1",
		})
	}
	if c.Consensus.VoteTimeoutSeconds < 0 {
		errors = append(errors, ValidationError{
			Field:   "consensus.vote_timeout_seconds",
			Value:   c.Consensus.VoteTimeoutSeconds,
			Message: "must be non-negative",
		})
	}

	return errors
}

// validatePool validates the PoolConfig
func (c *Config) validatePool() []ValidationError {
	var errors []ValidationError

	if c.Pool.MaxConcurrent < 1 {
		errors = append(errors, ValidationError{
			Field:   "pool.max_concurrent",
			Value:   c.Pool.MaxConcurrent,
			Message: "must be at least 1",
		})
	}
	if c.Pool.MaxRetries < 1 {
		errors = append(errors, ValidationError{
			Field:   "pool.max_retries",
			Value:   c.Pool.MaxRetries,
			Message: "must be at least 1",
		})
	}
	if c.Pool.RetryBaseDelayMs < 0 {
		errors = append(errors, ValidationError{
			Field:   "pool.retry_base_delay_ms",
			Value:   c.Pool.RetryBaseDelayMs,
			Message: "must be non-negative",
		})
	}
	if c.Pool.GracePeriodSeconds < 0 {
		errors = append(errors, ValidationError{
			Field:   "pool.grace_period_seconds",
			Value:   c.Pool.GracePeriodSeconds,
			Message: "must be non-negative",
		})
	}

	return errors
}

// validateLLM validates the LLMConfig
func (c *Config) validateLLM() []ValidationError {
	var errors []ValidationError

	if c.LLM.BaseURL == "" {
		errors = append(errors, ValidationError{
			Field:   "llm.base_url",
			Value:   c.LLM.BaseURL,
			Message: "must not be empty",
		})
	}
	if c.LLM.TimeoutSeconds < 0 {
		errors = append(errors, ValidationError{
			Field:   "llm.timeout_seconds",
			Value:   c.LLM.TimeoutSeconds,
			Message: "must be non-negative",
		})
	}

	return errors
}

// validateNotify validates the NotifyConfig
func (c *Config) validateNotify() []ValidationError {
	var errors []ValidationError

	if c.Notify.WebhookURL != "" {
		u, err := url.Parse(c.Notify.WebhookURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			errors = append(errors, ValidationError{
				Field:   "notify.webhook_url",
				Value:   c.Notify.WebhookURL,
				Message: "must be an absolute URL",
			})
		}
	}

	return errors
}

// validateOrchestrator validates the OrchestratorConfig
func (c *Config) validateOrchestrator() []ValidationError {
	var errors []ValidationError

	if c.Orchestrator.HelperType != "" && !slices.Contains(ValidHelperTypes(), c.Orchestrator.HelperType) {
		errors = append(errors, ValidationError{
			Field:   "orchestrator.helper_type",
			Value:   c.Orchestrator.HelperType,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidHelperTypes(), ", ")),
		})
	}
	if c.Orchestrator.StallMultiplier < 1.0 {
		errors = append(errors, ValidationError{
			Field:   "orchestrator.stall_multiplier",
			Value:   c.Orchestrator.StallMultiplier,
			Message: "must be at least 1.0",
		})
	}

	return errors
}
