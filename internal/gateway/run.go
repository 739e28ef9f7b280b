package gateway

import (
	"context"
	"time"

	"github.com/user/fairweather/internal/types"
)

// RunStatus represents the lifecycle state of a Run.
type RunStatus string

const (
	RunStatusQueued   RunStatus = "queued"
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Run tracks the handling of one inbound message.
type Run struct {
	ID             types.RunID
	ConversationID types.ConversationID
	Event          *types.InboundEvent
	Status         RunStatus
	CreatedAt      time.Time
	StartedAt      *time.Time
	EndedAt        *time.Time
	Error          error

	// Ctx is set by the queue when the run is dequeued.
	Ctx        context.Context
	OnComplete func(response string)
}

func NewRun(event *types.InboundEvent) *Run {
	return &Run{
		ID:             types.NewRunID(),
		ConversationID: event.ConversationID,
		Event:          event,
		Status:         RunStatusQueued,
		CreatedAt:      time.Now(),
	}
}

func (r *Run) start() {
	now := time.Now()
	r.StartedAt = &now
	r.Status = RunStatusRunning
}

func (r *Run) finish(err error) {
	now := time.Now()
	r.EndedAt = &now
	r.Error = err
	if err != nil {
		r.Status = RunStatusFailed
		return
	}
	r.Status = RunStatusComplete
}
