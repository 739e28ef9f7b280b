package gateway

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/user/fairweather/internal/types"
	"github.com/user/fairweather/internal/workflow"
)

// Workflow runs one message through the conversation state machine.
type Workflow interface {
	Start(ctx context.Context, id types.ConversationID, utterance string) *workflow.Outcome
	Resume(ctx context.Context, sc *types.SessionContext, utterance string) *workflow.Outcome
}

// Dispatcher is the single entry point for inbound text. It picks the fresh
// or resume path from the conversation's stored context, runs the workflow,
// and applies the outcome's context action before replying.
type Dispatcher struct {
	store    types.ContextStore
	workflow Workflow
	turns    types.TurnStore

	mu    sync.Mutex
	locks map[types.ConversationID]*convLock
}

// convLock serializes one conversation. refs counts holders and waiters; the
// entry is dropped when it reaches zero.
type convLock struct {
	mu   sync.Mutex
	refs int
}

type DispatcherOption func(*Dispatcher)

// WithTranscript records every handled turn. Recording errors are logged and
// never change the reply.
func WithTranscript(turns types.TurnStore) DispatcherOption {
	return func(d *Dispatcher) {
		d.turns = turns
	}
}

func NewDispatcher(store types.ContextStore, wf Workflow, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		store:    store,
		workflow: wf,
		locks:    make(map[types.ConversationID]*convLock),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Dispatcher) lock(id types.ConversationID) func() {
	d.mu.Lock()
	l, ok := d.locks[id]
	if !ok {
		l = &convLock{}
		d.locks[id] = l
	}
	l.refs++
	d.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()

		d.mu.Lock()
		defer d.mu.Unlock()
		l.refs--
		if l.refs == 0 {
			delete(d.locks, id)
		}
	}
}

// Handle answers one message. It never fails: every error is already folded
// into the returned text.
func (d *Dispatcher) Handle(ctx context.Context, id types.ConversationID, utterance string) string {
	return d.Dispatch(ctx, id, utterance).Response
}

// Dispatch is Handle returning the full workflow outcome.
func (d *Dispatcher) Dispatch(ctx context.Context, id types.ConversationID, utterance string) *workflow.Outcome {
	unlock := d.lock(id)
	defer unlock()

	var out *workflow.Outcome
	if sc, ok := d.store.Get(ctx, id); ok && sc.Awaiting != types.AwaitingNone {
		sc.ConversationID = id
		out = d.workflow.Resume(ctx, sc, utterance)
	} else {
		out = d.workflow.Start(ctx, id, utterance)
	}

	switch out.Action {
	case workflow.ActionWrite:
		d.store.Put(ctx, id, out.Context)
	default:
		d.store.Clear(ctx, id)
	}

	d.record(ctx, id, utterance, out)
	return out
}

// Reset drops any pending clarification for id.
func (d *Dispatcher) Reset(ctx context.Context, id types.ConversationID) {
	unlock := d.lock(id)
	defer unlock()

	d.store.Clear(ctx, id)
}

func (d *Dispatcher) record(ctx context.Context, id types.ConversationID, utterance string, out *workflow.Outcome) {
	if d.turns == nil {
		return
	}
	turn := &types.Turn{
		ConversationID: id,
		At:             time.Now(),
		Utterance:      utterance,
		Response:       out.Response,
		State:          string(out.State),
		Path:           out.PathStrings(),
	}
	if err := d.turns.Append(context.WithoutCancel(ctx), turn); err != nil {
		slog.Error("failed to record turn", "conversation_id", string(id), "error", err)
	}
}

// ProcessRun is the queue processor: it handles the run's text and hands the
// reply to OnComplete.
func (d *Dispatcher) ProcessRun(run *Run) error {
	ctx := run.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	resp := d.Handle(ctx, run.ConversationID, run.Event.Text)
	if run.OnComplete != nil {
		run.OnComplete(resp)
	}
	return nil
}
