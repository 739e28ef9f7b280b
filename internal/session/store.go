// Package session holds the pending context of conversations that are
// waiting on a clarification reply.
//
// Entries live in memory only and expire a fixed interval after they were
// last written. There is no background sweeper: an expired entry is evicted
// the next time its conversation is read.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/user/fairweather/internal/types"
)

const DefaultTTL = 10 * time.Minute

type Option func(*Store)

// WithTTL sets the expiry window. Non-positive values keep the default.
func WithTTL(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.ttl = d
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// Store is an in-memory types.ContextStore.
type Store struct {
	mu      sync.Mutex
	entries map[types.ConversationID]*types.SessionContext
	ttl     time.Duration
	now     func() time.Time
}

var _ types.ContextStore = (*Store)(nil)

func NewStore(opts ...Option) *Store {
	s := &Store{
		entries: make(map[types.ConversationID]*types.SessionContext),
		ttl:     DefaultTTL,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) TTL() time.Duration {
	return s.ttl
}

// Get returns a copy of the live entry for id. An entry older than the TTL
// is removed and reported as absent.
func (s *Store) Get(_ context.Context, id types.ConversationID) (*types.SessionContext, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sc, ok := s.entries[id]
	if !ok {
		return nil, false
	}
	if s.now().Sub(sc.CreatedAt) > s.ttl {
		delete(s.entries, id)
		return nil, false
	}
	return sc.Clone(), true
}

// Put replaces any entry for id and stamps CreatedAt with the current time.
func (s *Store) Put(_ context.Context, id types.ConversationID, sc *types.SessionContext) {
	c := sc.Clone()
	if c == nil {
		c = &types.SessionContext{}
	}
	c.ConversationID = id

	s.mu.Lock()
	defer s.mu.Unlock()

	c.CreatedAt = s.now()
	s.entries[id] = c
}

// Clear removes the entry for id. Clearing an absent entry is a no-op.
func (s *Store) Clear(_ context.Context, id types.ConversationID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, id)
}

// Len counts stored entries, including expired ones not yet evicted.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.entries)
}
