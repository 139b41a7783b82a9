package invoker

import (
	"context"
	"errors"
)

// ErrNoBackendConfigured is returned by NoopBackend for every call. Wiring
// an Invoker with NoopBackend is how the system runs with
// RESURRECTION_API_KEY unset: every agent's model call fails immediately
// and cheaply, forcing the deterministic fallback path everywhere.
var ErrNoBackendConfigured = errors.New("invoker: no model backend configured")

// NoopBackend rejects every call without doing any work.
type NoopBackend struct{}

func (NoopBackend) Invoke(ctx context.Context, model, systemPrompt, userInput string, maxTokens int) (string, TokenUsage, error) {
	return "", TokenUsage{}, ErrNoBackendConfigured
}
