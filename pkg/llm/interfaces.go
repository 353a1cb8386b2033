// Package llm provides the text-in/text-out completion oracle used by the
// query pipeline, with provider clients, retries, and a circuit breaker.
package llm

import (
	"context"
)

// CompletionRequest is a single completion call. Callers that need
// deterministic output pass a temperature near zero.
type CompletionRequest struct {
	Prompt      string
	System      string
	Temperature float64
	MaxTokens   int
	Stop        []string
}

// Client is a provider-level chat completion client. Use this interface for
// dependency injection to enable mocking in tests.
type Client interface {
	// Complete generates a completion for the request and returns the text.
	Complete(ctx context.Context, req CompletionRequest) (string, error)

	// GetModel returns the configured model name.
	GetModel() string

	// GetEndpoint returns the configured endpoint.
	GetEndpoint() string
}

// Ensure provider clients implement Client at compile time.
var (
	_ Client = (*OpenAIClient)(nil)
	_ Client = (*AnthropicClient)(nil)
	_ Client = (*Oracle)(nil)
	_ Client = (*MockClient)(nil)
)
