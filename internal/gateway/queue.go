package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/user/fairweather/internal/types"
)

var ErrQueueStopped = errors.New("queue stopped")

const (
	laneBuffer     = 100
	failedResponse = "Sorry, something went wrong processing your message."
)

// Queue manages per-conversation lanes with a global concurrency semaphore.
// Each conversation gets its own FIFO channel (lane), so runs within a
// conversation are processed one at a time in arrival order, while the
// semaphore limits the number of runs in flight across conversations.
type Queue struct {
	lanes     map[types.ConversationID]chan *Run
	semaphore *semaphore.Weighted
	processor func(*Run) error
	active    atomic.Int64
	stopped   bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.RWMutex
}

func NewQueue(maxConcurrent int64) *Queue {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Queue{
		lanes:     make(map[types.ConversationID]chan *Run),
		semaphore: semaphore.NewWeighted(maxConcurrent),
	}
}

// Start initialises the queue's context. Must be called before Enqueue.
func (q *Queue) Start(ctx context.Context) {
	q.ctx, q.cancel = context.WithCancel(ctx)
}

// Stop cancels the queue context, closes all lanes, and waits for in-flight
// runs to finish. Runs still waiting in a lane are dropped.
func (q *Queue) Stop() {
	if q.cancel != nil {
		q.cancel()
	}
	q.mu.Lock()
	if !q.stopped {
		q.stopped = true
		for _, lane := range q.lanes {
			close(lane)
		}
	}
	q.mu.Unlock()
	q.wg.Wait()
}

// Enqueue adds a Run to its conversation's lane, creating the lane and its
// goroutine on first use.
func (q *Queue) Enqueue(run *Run) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.stopped || q.ctx == nil {
		return ErrQueueStopped
	}

	lane, exists := q.lanes[run.ConversationID]
	if !exists {
		lane = make(chan *Run, laneBuffer)
		q.lanes[run.ConversationID] = lane
		q.wg.Add(1)
		go q.processLane(lane)
	}

	select {
	case lane <- run:
		return nil
	default:
		return fmt.Errorf("queue full for conversation %s", run.ConversationID)
	}
}

// processLane drains one lane, holding a semaphore slot while each run is
// processed.
func (q *Queue) processLane(lane chan *Run) {
	defer q.wg.Done()
	for {
		select {
		case run, ok := <-lane:
			if !ok {
				return
			}
			if err := q.semaphore.Acquire(q.ctx, 1); err != nil {
				return
			}
			q.process(run)
			q.semaphore.Release(1)
		case <-q.ctx.Done():
			return
		}
	}
}

func (q *Queue) process(run *Run) {
	q.mu.RLock()
	processor := q.processor
	q.mu.RUnlock()
	if processor == nil {
		return
	}

	q.active.Add(1)
	defer q.active.Add(-1)

	run.Ctx = q.ctx
	run.start()
	err := func() (err error) {
		defer func() {
			if p := recover(); p != nil {
				err = fmt.Errorf("panic: %v", p)
			}
		}()
		return processor(run)
	}()
	run.finish(err)

	if err != nil {
		slog.Error("run failed", "run_id", string(run.ID), "conversation_id", string(run.ConversationID), "error", err)
		if run.OnComplete != nil {
			run.OnComplete(failedResponse)
		}
	}
}

// WaitIdle blocks until no runs are being processed, or the timeout expires.
// Returns true if idle.
func (q *Queue) WaitIdle(timeout time.Duration) bool {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	tick := time.NewTicker(20 * time.Millisecond)
	defer tick.Stop()
	for {
		if q.active.Load() == 0 {
			return true
		}
		select {
		case <-deadline.C:
			return false
		case <-tick.C:
		}
	}
}

// Lanes reports how many conversations have a lane.
func (q *Queue) Lanes() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.lanes)
}

func (q *Queue) SetProcessor(fn func(*Run) error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.processor = fn
}
