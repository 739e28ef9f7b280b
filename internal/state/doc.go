// Package state provides filesystem-backed storage for transcripts and
// briefings. Pending conversation context lives in memory only; see
// package session.
package state

import "github.com/user/fairweather/internal/types"

var _ types.TurnStore = (*TranscriptStore)(nil)
