package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/user/fairweather/internal/types"
)

func testRun(id types.ConversationID) *Run {
	return &Run{
		ID:             types.NewRunID(),
		ConversationID: id,
		Event:          &types.InboundEvent{ConversationID: id},
		Status:         RunStatusQueued,
	}
}

func TestQueueConcurrency(t *testing.T) {
	queue := NewQueue(2)
	queue.Start(context.Background())
	defer queue.Stop()

	var running int32
	var maxSeen int32
	var wg sync.WaitGroup

	queue.SetProcessor(func(run *Run) error {
		defer wg.Done()
		current := atomic.AddInt32(&running, 1)
		for {
			old := atomic.LoadInt32(&maxSeen)
			if current <= old || atomic.CompareAndSwapInt32(&maxSeen, old, current) {
				break
			}
		}
		time.Sleep(50 * time.Millisecond)
		atomic.AddInt32(&running, -1)
		return nil
	})

	for i := 0; i < 5; i++ {
		wg.Add(1)
		if err := queue.Enqueue(testRun(types.ConversationID(fmt.Sprintf("conv-%d", i)))); err != nil {
			t.Fatal(err)
		}
	}
	wg.Wait()

	if m := atomic.LoadInt32(&maxSeen); m > 2 {
		t.Errorf("expected max 2 concurrent, saw %d", m)
	}
	if m := atomic.LoadInt32(&maxSeen); m < 2 {
		t.Errorf("expected distinct conversations to overlap, saw %d", m)
	}
	if queue.Lanes() != 5 {
		t.Errorf("expected 5 lanes, got %d", queue.Lanes())
	}
}

func TestQueueSameConversationOrdering(t *testing.T) {
	queue := NewQueue(4)
	queue.Start(context.Background())
	defer queue.Stop()

	var mu sync.Mutex
	var order []string
	var inFlight int32
	done := make(chan struct{})

	queue.SetProcessor(func(run *Run) error {
		if atomic.AddInt32(&inFlight, 1) > 1 {
			t.Error("two runs of one conversation overlapped")
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)

		mu.Lock()
		order = append(order, run.Event.Text)
		n := len(order)
		mu.Unlock()
		if n == 5 {
			close(done)
		}
		return nil
	})

	for i := 0; i < 5; i++ {
		run := testRun("same")
		run.Event.Text = fmt.Sprint(i)
		if err := queue.Enqueue(run); err != nil {
			t.Fatal(err)
		}
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for runs to process")
	}

	mu.Lock()
	defer mu.Unlock()
	for i, v := range order {
		if v != fmt.Sprint(i) {
			t.Errorf("expected order[%d] = %d, got %s", i, i, v)
		}
	}
}

func TestQueueProcessorErrorReplies(t *testing.T) {
	queue := NewQueue(1)
	queue.Start(context.Background())
	defer queue.Stop()

	queue.SetProcessor(func(run *Run) error {
		return errors.New("boom")
	})

	got := make(chan string, 1)
	run := testRun("c")
	run.OnComplete = func(s string) { got <- s }
	if err := queue.Enqueue(run); err != nil {
		t.Fatal(err)
	}

	select {
	case resp := <-got:
		if resp != failedResponse {
			t.Errorf("unexpected reply %q", resp)
		}
	case <-time.After(time.Second):
		t.Fatal("no reply for failed run")
	}
	if !queue.WaitIdle(time.Second) {
		t.Fatal("queue never went idle")
	}
	if run.Status != RunStatusFailed {
		t.Errorf("expected failed status, got %s", run.Status)
	}
}

func TestQueueRecoversPanics(t *testing.T) {
	queue := NewQueue(1)
	queue.Start(context.Background())
	defer queue.Stop()

	var calls int32
	queue.SetProcessor(func(run *Run) error {
		if atomic.AddInt32(&calls, 1) == 1 {
			panic("handler bug")
		}
		return nil
	})

	got := make(chan string, 2)
	for i := 0; i < 2; i++ {
		run := testRun("c")
		run.OnComplete = func(s string) { got <- s }
		if err := queue.Enqueue(run); err != nil {
			t.Fatal(err)
		}
	}

	select {
	case resp := <-got:
		if resp != failedResponse {
			t.Errorf("unexpected reply %q", resp)
		}
	case <-time.After(time.Second):
		t.Fatal("no reply for panicking run")
	}

	deadline := time.Now().Add(time.Second)
	for atomic.LoadInt32(&calls) < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Error("lane stopped after a panic")
	}
}

func TestQueueNoProcessor(t *testing.T) {
	queue := NewQueue(1)
	queue.Start(context.Background())
	defer queue.Stop()

	if err := queue.Enqueue(testRun("no-proc")); err != nil {
		t.Fatal(err)
	}
	if !queue.WaitIdle(time.Second) {
		t.Error("expected idle queue")
	}
}

func TestQueueEnqueueAfterStop(t *testing.T) {
	queue := NewQueue(1)
	queue.Start(context.Background())
	if err := queue.Enqueue(testRun("c")); err != nil {
		t.Fatal(err)
	}
	queue.Stop()
	queue.Stop()

	if err := queue.Enqueue(testRun("c")); !errors.Is(err, ErrQueueStopped) {
		t.Errorf("expected ErrQueueStopped, got %v", err)
	}
}

func TestQueueEnqueueBeforeStart(t *testing.T) {
	queue := NewQueue(1)
	if err := queue.Enqueue(testRun("c")); !errors.Is(err, ErrQueueStopped) {
		t.Errorf("expected ErrQueueStopped, got %v", err)
	}
}
