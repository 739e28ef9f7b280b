package llm

import "context"

// Provider sends a conversation to an LLM backend and returns its reply.
type Provider interface {
	Complete(ctx context.Context, messages []Message) (*Response, error)
}

// Config holds common configuration for LLM providers.
type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float32
	// JSONMode asks the backend to reply with a single JSON object.
	JSONMode bool
}
