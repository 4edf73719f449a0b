// Package llm provides the generation capability: an OpenAI-compatible
// chat-completions client with model tiers and token usage reporting.
//
// The orchestrator and worker pool consume the Generator interface rather
// than the concrete client, so tests substitute a fake and the transport
// can be swapped without touching coordination logic. Status classification
// matters more than transport detail here: 429 and 5xx responses surface as
// retryable transient errors, everything else fails permanently.
package llm
