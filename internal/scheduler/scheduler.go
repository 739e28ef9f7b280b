// Package scheduler fires briefings on their cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/user/fairweather/internal/state"
	"github.com/user/fairweather/internal/types"
)

// Handler runs one briefing firing.
type Handler func(ctx context.Context, b *state.Briefing)

// Asker answers one utterance for a conversation.
type Asker interface {
	Ask(ctx context.Context, id types.ConversationID, text string) (string, error)
}

// Deliverer sends a message to a conversation's transport.
type Deliverer interface {
	Deliver(ctx context.Context, id types.ConversationID, message string) error
}

// cronParser accepts standard 5-field expressions, an optional leading
// seconds field and descriptors like "@daily".
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ValidateSchedule reports whether expr is a schedule the scheduler accepts.
func ValidateSchedule(expr string) error {
	if _, err := cronParser.Parse(expr); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", expr, err)
	}
	return nil
}

// AskAndDeliver returns a Handler that runs the briefing's utterance through
// asker and sends the reply to the briefing's conversation.
func AskAndDeliver(asker Asker, out Deliverer, timeout time.Duration) Handler {
	return func(ctx context.Context, b *state.Briefing) {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		resp, err := asker.Ask(ctx, b.ConversationID, b.Utterance())
		if err != nil {
			slog.Error("briefing failed", "name", b.Name, "conversation_id", string(b.ConversationID), "error", err)
			return
		}
		if err := out.Deliver(ctx, b.ConversationID, resp); err != nil {
			slog.Error("briefing delivery failed", "name", b.Name, "conversation_id", string(b.ConversationID), "error", err)
		}
	}
}

// Scheduler registers each enabled briefing with a schedule as a cron entry.
type Scheduler struct {
	store   *state.BriefingStore
	handler Handler
	loc     *time.Location

	mu   sync.Mutex
	cron *cron.Cron
	ctx  context.Context
}

type Option func(*Scheduler)

// WithLocation evaluates schedules in loc rather than the local zone.
func WithLocation(loc *time.Location) Option {
	return func(s *Scheduler) {
		if loc != nil {
			s.loc = loc
		}
	}
}

func New(store *state.BriefingStore, handler Handler, opts ...Option) *Scheduler {
	s := &Scheduler{
		store:   store,
		handler: handler,
		loc:     time.Local,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Scheduler) newCron() *cron.Cron {
	return cron.New(cron.WithParser(cronParser), cron.WithLocation(s.loc))
}

// Start loads briefings and starts the cron ticker. Briefings with an invalid
// schedule are logged and skipped. ctx is passed to every firing.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ctx = ctx
	c := s.newCron()
	if err := s.register(c); err != nil {
		return err
	}
	s.cron = c
	c.Start()
	return nil
}

func (s *Scheduler) register(c *cron.Cron) error {
	briefings, err := s.store.List()
	if err != nil {
		return err
	}

	for _, b := range briefings {
		if b.Schedule == "" || !b.Enabled {
			continue
		}
		_, err := c.AddFunc(b.Schedule, func() {
			slog.Info("cron firing briefing", "name", b.Name, "conversation_id", string(b.ConversationID))
			s.handler(s.ctx, b)
		})
		if err != nil {
			slog.Error("invalid cron schedule", "name", b.Name, "schedule", b.Schedule, "error", err)
			continue
		}
		slog.Info("scheduled briefing", "name", b.Name, "schedule", b.Schedule)
	}
	return nil
}

// Reload replaces the cron entries with the store's current briefings.
func (s *Scheduler) Reload() error {
	s.mu.Lock()
	old := s.cron
	ctx := s.ctx
	s.mu.Unlock()

	if old != nil {
		<-old.Stop().Done()
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return s.Start(ctx)
}

// Entries returns the number of registered cron entries.
func (s *Scheduler) Entries() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron == nil {
		return 0
	}
	return len(s.cron.Entries())
}

// Stop stops the ticker and waits for running firings to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	c := s.cron
	s.mu.Unlock()
	if c != nil {
		<-c.Stop().Done()
	}
}
