package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"quorum/internal/errors"
	"quorum/internal/logging"
)

// Tier selects a model class without naming a concrete model.
type Tier string

const (
	TierDefault   Tier = "default"
	TierFast      Tier = "fast"
	TierReasoning Tier = "reasoning"
	TierPowerful  Tier = "powerful"
)

// Usage is the token accounting returned with every generation.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Result is a completed generation.
type Result struct {
	Content string
	Model   string
	Usage   Usage
}

// Options tune a single generation call. The zero value requests the
// default tier with the client's standard limits.
type Options struct {
	Model       string // overrides Tier when set
	Tier        Tier
	MaxTokens   int
	Temperature float32
}

// Generator is the generation capability consumed by the orchestrator and
// the worker pool.
type Generator interface {
	Generate(ctx context.Context, roleContext, instructions string, opts Options) (Result, error)
}

// ModelTiers maps tiers to concrete model identifiers.
type ModelTiers struct {
	Default   string
	Fast      string
	Reasoning string
	Powerful  string
}

// DefaultModelTiers returns the standard tier routing.
func DefaultModelTiers() ModelTiers {
	return ModelTiers{
		Default:   "meta/llama-3.1-70b-instruct",
		Fast:      "microsoft/phi-3-mini-4k-instruct",
		Reasoning: "nvidia/nemotron-3-nano-30b-a3b",
		Powerful:  "meta/llama-3.1-405b-instruct",
	}
}

// Config configures the HTTP client.
type Config struct {
	BaseURL        string
	APIKey         string
	TimeoutSeconds int
	Models         ModelTiers
}

// Client is an OpenAI-compatible chat-completions client.
type Client struct {
	baseURL string
	apiKey  string
	models  ModelTiers
	http    *http.Client
	logger  *logging.Logger
}

// NewClient creates a generation client. The base URL is normalized to the
// /v1 API root; a missing scheme defaults to http.
func NewClient(cfg Config, logger *logging.Logger) *Client {
	if logger == nil {
		logger = logging.NopLogger()
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	models := cfg.Models
	if models.Default == "" {
		models = DefaultModelTiers()
	}
	return &Client{
		baseURL: normalizeBaseURL(cfg.BaseURL),
		apiKey:  cfg.APIKey,
		models:  models,
		logger:  logger.WithComponent("llm"),
		http: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout:   5 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				ForceAttemptHTTP2:   true,
				MaxIdleConns:        100,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float32       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage Usage `json:"usage"`
}

// Generate sends one chat completion. The role context becomes the system
// message and the instructions the user message.
func (c *Client) Generate(ctx context.Context, roleContext, instructions string, opts Options) (Result, error) {
	if strings.TrimSpace(instructions) == "" {
		return Result{}, errors.NewValidationError("instructions are required").WithField("instructions")
	}
	if c.baseURL == "" {
		return Result{}, errors.NewValidationError("llm base URL is not configured").WithField("baseURL")
	}

	model := opts.Model
	if model == "" {
		model = c.resolveTier(opts.Tier)
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	temperature := opts.Temperature
	if temperature <= 0 {
		temperature = 0.7
	}

	var messages []chatMessage
	if roleContext != "" {
		messages = append(messages, chatMessage{Role: "system", Content: roleContext})
	}
	messages = append(messages, chatMessage{Role: "user", Content: instructions})

	payload, err := json.Marshal(chatRequest{
		Model:       model,
		Messages:    messages,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return Result{}, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return Result{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	c.logger.Debug("generation request", "model", model, "max_tokens", maxTokens)
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return Result{}, errors.NewTimeoutError("generation", time.Since(start))
		}
		return Result{}, errors.NewTransientError("generation request failed", err)
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp); err != nil {
		return Result{}, err
	}

	var decoded chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return Result{}, fmt.Errorf("decode response: %w", err)
	}
	if len(decoded.Choices) == 0 {
		return Result{}, fmt.Errorf("response missing choices")
	}
	content := decoded.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		return Result{}, fmt.Errorf("response empty")
	}

	c.logger.Debug("generation complete",
		"model", model,
		"duration", time.Since(start),
		"prompt_tokens", decoded.Usage.PromptTokens,
		"completion_tokens", decoded.Usage.CompletionTokens)
	return Result{Content: content, Model: model, Usage: decoded.Usage}, nil
}

func (c *Client) resolveTier(t Tier) string {
	switch t {
	case TierFast:
		return c.models.Fast
	case TierReasoning:
		return c.models.Reasoning
	case TierPowerful:
		return c.models.Powerful
	default:
		return c.models.Default
	}
}

// classifyStatus maps HTTP failures onto the error taxonomy: rate limits
// and server errors are transient and retryable, everything else is
// permanent.
func classifyStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	msg := fmt.Sprintf("generation returned %s: %s", resp.Status, strings.TrimSpace(string(body)))
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return errors.NewTransientError(msg, nil).WithStatusCode(resp.StatusCode)
	}
	return errors.New(msg)
}

func normalizeBaseURL(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return trimmed
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "http://" + trimmed
	}
	trimmed = strings.TrimRight(trimmed, "/")
	if strings.HasSuffix(trimmed, "/v1") {
		return trimmed
	}
	return trimmed + "/v1"
}
