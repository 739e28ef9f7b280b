package types

import (
	"strings"

	"github.com/google/uuid"
)

// ConversationID identifies one conversation across messages. Transports
// build it as "<source>:<id>".
type ConversationID string
type RunID string
type TurnID string

func NewRunID() RunID {
	return RunID(uuid.New().String())
}

func NewTurnID() TurnID {
	return TurnID(uuid.New().String())
}

func NewConversationID(parts ...string) ConversationID {
	return ConversationID(strings.Join(parts, ":"))
}

// Source returns the transport prefix of the id ("telegram" for
// "telegram:42"), or the whole id when it has no prefix.
func (c ConversationID) Source() string {
	s := string(c)
	if i := strings.Index(s, ":"); i >= 0 {
		return s[:i]
	}
	return s
}
