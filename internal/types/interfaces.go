package types

import (
	"context"
	"time"
)

// IntentExtractor turns a fresh utterance into a structured Intent. now is
// the reference instant for relative expressions like "tomorrow".
type IntentExtractor interface {
	Extract(ctx context.Context, utterance string, now time.Time) (*Intent, error)
}

// ConditionProvider reports conditions at a place and time.
type ConditionProvider interface {
	Forecast(ctx context.Context, when time.Time, location string) (*ConditionReport, error)
}

// SchedulingSink records a scheduled activity.
type SchedulingSink interface {
	Schedule(ctx context.Context, activity string, when time.Time, location string) (*ScheduledEvent, error)
}

// ContextStore keeps at most one pending SessionContext per conversation.
// Expired entries read as absent.
type ContextStore interface {
	Get(ctx context.Context, id ConversationID) (*SessionContext, bool)
	Put(ctx context.Context, id ConversationID, sc *SessionContext)
	Clear(ctx context.Context, id ConversationID)
}

// TurnStore persists the transcript of handled messages.
type TurnStore interface {
	Append(ctx context.Context, turn *Turn) error
	Tail(ctx context.Context, id ConversationID, limit int) ([]*Turn, error)
	Count(ctx context.Context, id ConversationID) (int64, error)
}
