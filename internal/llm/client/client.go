package llmclient

import (
	"context"

	"interviewforge/internal/prompt"
)

// Client is the completion-service boundary. Send performs exactly one
// request; it never retries. Failures are *TransientError or *FatalError
// whenever the provider's answer allows classifying them.
type Client interface {
	Name() string
	Close() error
	Send(ctx context.Context, env prompt.Envelope) (string, error)
}
