package delivery

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastPolicy(attempts int) *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:  attempts,
		InitialDelay: time.Millisecond,
		Multiplier:   1.0,
		MaxDelay:     10 * time.Millisecond,
	}
}

func TestRetryPolicy(t *testing.T) {
	policy := DefaultRetryPolicy()

	if !policy.ShouldRetry(errors.New("connection refused"), 1) {
		t.Error("expected connection error to be retryable")
	}
	if policy.ShouldRetry(errors.New("error"), 3) {
		t.Error("should not retry after the last attempt")
	}

	for attempt, want := range map[int]time.Duration{1: time.Second, 2: 2 * time.Second, 3: 4 * time.Second} {
		if got := policy.NextDelay(attempt); got != want {
			t.Errorf("NextDelay(%d) = %v, want %v", attempt, got, want)
		}
	}
}

func TestRetryPolicyNonRetryable(t *testing.T) {
	policy := DefaultRetryPolicy()

	for _, err := range []error{
		errors.New("invalid request"),
		errors.New("unauthorized"),
		errors.New("Bad Request: chat not found"),
		Permanent(errors.New("boom")),
		context.Canceled,
	} {
		if policy.ShouldRetry(err, 1) {
			t.Errorf("expected %q to be non-retryable", err)
		}
	}
	if policy.ShouldRetry(nil, 1) {
		t.Error("nil error should not be retryable")
	}
}

func TestRetryPolicyMaxDelayCap(t *testing.T) {
	policy := &RetryPolicy{
		MaxAttempts:  10,
		InitialDelay: 1 * time.Second,
		Multiplier:   10.0,
		MaxDelay:     30 * time.Second,
	}
	if delay := policy.NextDelay(5); delay != policy.MaxDelay {
		t.Errorf("expected delay capped at %v, got %v", policy.MaxDelay, delay)
	}
}

func TestRetryPolicyExecuteSuccess(t *testing.T) {
	calls := 0
	err := fastPolicy(3).Execute(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("temporary failure")
		}
		return nil
	})
	if err != nil {
		t.Errorf("expected success, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestRetryPolicyExecuteNonRetryable(t *testing.T) {
	calls := 0
	err := fastPolicy(3).Execute(context.Background(), func() error {
		calls++
		return errors.New("invalid request")
	})
	if err == nil {
		t.Error("expected error for non-retryable failure")
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestRetryPolicyExecuteAllFail(t *testing.T) {
	calls := 0
	err := fastPolicy(2).Execute(context.Background(), func() error {
		calls++
		return errors.New("timeout")
	})
	if err == nil {
		t.Error("expected error after all attempts exhausted")
	}
	if calls != 2 {
		t.Errorf("expected 2 calls, got %d", calls)
	}
}

func TestRetryPolicyExecuteContextDone(t *testing.T) {
	policy := &RetryPolicy{MaxAttempts: 5, InitialDelay: time.Hour, Multiplier: 1, MaxDelay: time.Hour}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	calls := 0
	err := policy.Execute(ctx, func() error {
		calls++
		return errors.New("timeout")
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}
