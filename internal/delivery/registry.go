// Package delivery routes outbound messages to the transport that owns a
// conversation.
package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/user/fairweather/internal/types"
)

// Handler sends message to the conversation id.
type Handler func(ctx context.Context, id types.ConversationID, message string) error

// Registry maps a conversation's source prefix ("telegram" for
// "telegram:42") to a Handler.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	retry    *RetryPolicy
}

func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]Handler),
		retry:    DefaultRetryPolicy(),
	}
}

// SetRetryPolicy replaces the default policy. A nil policy disables retries.
func (r *Registry) SetRetryPolicy(p *RetryPolicy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p == nil {
		p = &RetryPolicy{MaxAttempts: 1, Multiplier: 1}
	}
	r.retry = p
}

func (r *Registry) Register(source string, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[source] = handler
}

// Deliver sends message through the handler registered for id's source,
// retrying transient failures.
func (r *Registry) Deliver(ctx context.Context, id types.ConversationID, message string) error {
	r.mu.RLock()
	handler, ok := r.handlers[id.Source()]
	policy := r.retry
	r.mu.RUnlock()

	if !ok {
		return fmt.Errorf("no delivery handler for conversation: %s", id)
	}

	attempt := 0
	return policy.Execute(ctx, func() error {
		attempt++
		err := handler(ctx, id, message)
		if err != nil {
			slog.Warn("delivery attempt failed", "conversation_id", id, "attempt", attempt, "error", err)
		}
		return err
	})
}
