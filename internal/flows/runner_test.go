package flows

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errTransient = errors.New("transient")

func transient(err error) bool { return errors.Is(err, errTransient) }

func TestRunRetriesTransientUpToBudget(t *testing.T) {
	calls := 0
	retries := 0
	exhausted := 0
	r := Runner{
		MaxRetries:  2,
		Transient:   transient,
		OnRetry:     func(int, error) { retries++ },
		OnExhausted: func(error) { exhausted++ },
	}

	err := r.Run(context.Background(), func(context.Context) error {
		calls++
		return errTransient
	})
	if !errors.Is(err, errTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
	if calls != 3 || retries != 2 || exhausted != 1 {
		t.Fatalf("expected 3 calls, 2 retries and 1 exhaustion, got %d/%d/%d", calls, retries, exhausted)
	}
}

func TestRunDoesNotRetryPermanentErrors(t *testing.T) {
	calls := 0
	permanent := errors.New("permanent")
	r := Runner{MaxRetries: 5, Transient: transient}

	err := r.Run(context.Background(), func(context.Context) error {
		calls++
		return permanent
	})
	if !errors.Is(err, permanent) || calls != 1 {
		t.Fatalf("expected single call with permanent error, got calls=%d err=%v", calls, err)
	}
}

func TestRunAppliesPerAttemptTimeout(t *testing.T) {
	r := Runner{Timeout: 10 * time.Millisecond}
	err := r.Run(context.Background(), func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestRunStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := Runner{MaxRetries: 3, Transient: transient}.Run(ctx, func(context.Context) error {
		called = true
		return nil
	})
	if called || !errors.Is(err, context.Canceled) {
		t.Fatalf("expected no call and context.Canceled, got called=%v err=%v", called, err)
	}
}

func TestDoReturnsValueAfterRecovery(t *testing.T) {
	calls := 0
	r := Runner{MaxRetries: 2, Backoff: time.Millisecond, Transient: transient}
	v, err := Do(context.Background(), r, func(context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, errTransient
		}
		return 42, nil
	})
	if err != nil || v != 42 {
		t.Fatalf("expected 42 after one retry, got %d %v", v, err)
	}
}
