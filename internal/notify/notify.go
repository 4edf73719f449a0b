// Package notify provides the escalation side-channel: a fire-and-forget
// notifier invoked when a task blocks or a worker needs human attention.
// Delivery failures are logged by the caller and never affect coordination.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"quorum/internal/logging"
)

// Notifier delivers an escalation message to an external sink. Delivery is
// at-least-once at best; callers treat errors as advisory.
type Notifier interface {
	Notify(ctx context.Context, message string) error
}

// Func adapts a function to the Notifier interface.
type Func func(ctx context.Context, message string) error

// Notify calls f.
func (f Func) Notify(ctx context.Context, message string) error {
	return f(ctx, message)
}

// LogNotifier writes escalations to the structured log. It is the default
// sink when no webhook is configured.
type LogNotifier struct {
	logger *logging.Logger
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(logger *logging.Logger) *LogNotifier {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &LogNotifier{logger: logger.WithComponent("notify")}
}

// Notify logs the escalation at warning level.
func (n *LogNotifier) Notify(_ context.Context, message string) error {
	n.logger.Warn("escalation", "message", message)
	return nil
}

// WebhookNotifier posts escalations as JSON to a configured URL.
type WebhookNotifier struct {
	url  string
	http *http.Client
}

// NewWebhookNotifier creates a WebhookNotifier posting to url.
func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{
		url:  url,
		http: &http.Client{Timeout: 10 * time.Second},
	}
}

type webhookPayload struct {
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Notify posts the message. Non-2xx responses are errors; the caller
// decides whether to log or drop them.
func (n *WebhookNotifier) Notify(ctx context.Context, message string) error {
	payload, err := json.Marshal(webhookPayload{Message: message, Timestamp: time.Now()})
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.http.Do(req)
	if err != nil {
		return fmt.Errorf("post notification: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notification returned %s", resp.Status)
	}
	return nil
}
