// Package gateway turns inbound messages from any transport into ordered
// workflow runs.
package gateway

import (
	"context"
	"fmt"
	"strings"

	"github.com/user/fairweather/internal/types"
)

// Gateway wraps each inbound event in a Run and enqueues it on its
// conversation's lane. Runs of one conversation are handled strictly in
// arrival order; distinct conversations run in parallel up to the
// concurrency limit.
type Gateway struct {
	dispatcher *Dispatcher
	Queue      *Queue

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a Gateway that feeds runs to d. maxConcurrent bounds the
// number of conversations processed at once and defaults to 2.
func New(d *Dispatcher, maxConcurrent ...int64) *Gateway {
	var concurrency int64 = 2
	if len(maxConcurrent) > 0 && maxConcurrent[0] > 0 {
		concurrency = maxConcurrent[0]
	}
	q := NewQueue(concurrency)
	q.SetProcessor(d.ProcessRun)
	return &Gateway{
		dispatcher: d,
		Queue:      q,
	}
}

func (g *Gateway) Start(ctx context.Context) {
	g.ctx, g.cancel = context.WithCancel(ctx)
	g.Queue.Start(g.ctx)
}

// Stop cancels the gateway context and waits for in-flight runs.
func (g *Gateway) Stop() {
	if g.cancel != nil {
		g.cancel()
	}
	g.Queue.Stop()
}

func (g *Gateway) Dispatcher() *Dispatcher {
	return g.dispatcher
}

// RunOption configures optional behavior on a Run.
type RunOption func(*Run)

// WithOnComplete sets a callback invoked with the run's reply.
func WithOnComplete(fn func(string)) RunOption {
	return func(r *Run) { r.OnComplete = fn }
}

// HandleInbound enqueues event for processing.
func (g *Gateway) HandleInbound(_ context.Context, event *types.InboundEvent, opts ...RunOption) error {
	if event.ConversationID == "" {
		return fmt.Errorf("inbound event from %q has no conversation id", event.Source)
	}
	run := NewRun(event)
	for _, opt := range opts {
		opt(run)
	}
	return g.Queue.Enqueue(run)
}

// Ask enqueues text for id and waits for the reply.
func (g *Gateway) Ask(ctx context.Context, id types.ConversationID, text string) (string, error) {
	done := make(chan string, 1)
	event := &types.InboundEvent{
		Source:         id.Source(),
		ConversationID: id,
		Text:           strings.TrimSpace(text),
	}
	if err := g.HandleInbound(ctx, event, WithOnComplete(func(resp string) { done <- resp })); err != nil {
		return "", err
	}

	var stopped <-chan struct{}
	if g.ctx != nil {
		stopped = g.ctx.Done()
	}
	select {
	case resp := <-done:
		return resp, nil
	case <-ctx.Done():
		return "", ctx.Err()
	case <-stopped:
		return "", ErrQueueStopped
	}
}
