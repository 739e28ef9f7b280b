package types

import (
	"encoding/json"
	"strings"
	"time"
)

const (
	ActivityUnknown = "unknown"
	ActivityCasual  = "casual conversation"
)

// Intent is the structured reading of one utterance.
type Intent struct {
	Activity   string    `json:"activity"`
	TargetTime time.Time `json:"target_time"`
	Location   string    `json:"location,omitempty"`
	Confidence float64   `json:"confidence"`

	IsPureConditionQuery bool `json:"is_pure_condition_query"`
	// HasSpecificTime is false when only the date of TargetTime is known.
	HasSpecificTime bool `json:"has_specific_time"`
}

// Resolved reports whether the activity was recognised.
func (i *Intent) Resolved() bool {
	if i == nil {
		return false
	}
	a := strings.TrimSpace(i.Activity)
	return a != "" && !strings.EqualFold(a, ActivityUnknown)
}

// Casual reports whether the utterance was small talk.
func (i *Intent) Casual() bool {
	if i == nil {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(i.Activity), ActivityCasual)
}

func (i *Intent) LocationOr(fallback string) string {
	if l := strings.TrimSpace(i.Location); l != "" {
		return l
	}
	return fallback
}

// Clone returns a copy safe to mutate.
func (i *Intent) Clone() *Intent {
	if i == nil {
		return nil
	}
	c := *i
	return &c
}

const (
	ReadingTemperature       = "temperature_c"
	ReadingFeelsLike         = "feels_like_c"
	ReadingHumidity          = "humidity_pct"
	ReadingPrecipitationProb = "precipitation_probability_pct"
	ReadingWindSpeed         = "wind_speed_ms"
)

// ConditionReport is the outcome of one condition lookup. It is never cached.
type ConditionReport struct {
	Location string             `json:"location"`
	At       time.Time          `json:"at"`
	Summary  string             `json:"summary"`
	Readings map[string]float64 `json:"readings"`
	Adverse  bool               `json:"adverse"`
}

// Reading returns the named reading and whether it was present.
func (r *ConditionReport) Reading(name string) (float64, bool) {
	v, ok := r.Readings[name]
	return v, ok
}

type Awaiting string

const (
	AwaitingNone              Awaiting = ""
	AwaitingTime              Awaiting = "TIME"
	AwaitingConditionDecision Awaiting = "CONDITION_DECISION"
)

// SessionContext is the pending state of a conversation between messages.
type SessionContext struct {
	ConversationID ConversationID `json:"conversation_id"`
	PendingIntent  *Intent        `json:"pending_intent,omitempty"`
	Awaiting       Awaiting       `json:"awaiting,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// Clone returns a deep copy.
func (s *SessionContext) Clone() *SessionContext {
	if s == nil {
		return nil
	}
	c := *s
	c.PendingIntent = s.PendingIntent.Clone()
	return &c
}

// ScheduledEvent acknowledges a successful scheduling call.
type ScheduledEvent struct {
	ID   string `json:"id"`
	Link string `json:"link,omitempty"`
}

// Turn is one handled message and its reply.
type Turn struct {
	ID             TurnID         `json:"id"`
	ConversationID ConversationID `json:"conversation_id"`
	Seq            int64          `json:"seq"`
	At             time.Time      `json:"at"`
	Utterance      string         `json:"utterance"`
	Response       string         `json:"response"`
	State          string         `json:"state"`
	Path           []string       `json:"path,omitempty"`
}

type InboundEvent struct {
	Source         string          `json:"source"`
	ConversationID ConversationID  `json:"conversation_id"`
	UserID         string          `json:"user_id"`
	Text           string          `json:"text"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
}
