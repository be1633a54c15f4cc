package rate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLimiter(t *testing.T, max int, window time.Duration) (*Limiter, *miniredis.Miniredis, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return New(rdb, "sg", max, window), mr, func() {
		_ = rdb.Close()
		mr.Close()
	}
}

func TestLimiterBlocksAfterBudget(t *testing.T) {
	l, _, done := newTestLimiter(t, 3, time.Minute)
	defer done()
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := l.Fail(ctx, "s1"); err != nil {
			t.Fatalf("attempt %d: unexpected error %v", i+1, err)
		}
	}
	if err := l.Check(ctx, "s1"); err != nil {
		t.Fatalf("expected one attempt left, got %v", err)
	}
	if err := l.Fail(ctx, "s1"); !errors.Is(err, ErrLimited) {
		t.Fatalf("expected ErrLimited on last attempt, got %v", err)
	}
	if err := l.Check(ctx, "s1"); !errors.Is(err, ErrLimited) {
		t.Fatalf("expected ErrLimited, got %v", err)
	}
	if err := l.Check(ctx, "s2"); err != nil {
		t.Fatalf("other key must be unaffected, got %v", err)
	}
}

func TestLimiterWindowExpires(t *testing.T) {
	l, mr, done := newTestLimiter(t, 1, time.Minute)
	defer done()
	ctx := context.Background()

	_ = l.Fail(ctx, "s1")
	if err := l.Check(ctx, "s1"); !errors.Is(err, ErrLimited) {
		t.Fatalf("expected ErrLimited, got %v", err)
	}
	mr.FastForward(61 * time.Second)
	if err := l.Check(ctx, "s1"); err != nil {
		t.Fatalf("expected window reset, got %v", err)
	}
}

func TestLimiterResetAndRemaining(t *testing.T) {
	l, _, done := newTestLimiter(t, 4, time.Minute)
	defer done()
	ctx := context.Background()

	_ = l.Fail(ctx, "s1")
	_ = l.Fail(ctx, "s1")
	if n, err := l.Remaining(ctx, "s1"); err != nil || n != 2 {
		t.Fatalf("expected 2 remaining, got %d (%v)", n, err)
	}
	if err := l.Reset(ctx, "s1"); err != nil {
		t.Fatalf("reset failed: %v", err)
	}
	if n, _ := l.Remaining(ctx, "s1"); n != 4 {
		t.Fatalf("expected full budget after reset, got %d", n)
	}
}

func TestNilLimiterAllows(t *testing.T) {
	var l *Limiter
	if New(nil, "sg", 3, time.Minute) != nil {
		t.Fatalf("expected nil limiter without client")
	}
	if err := l.Fail(context.Background(), "s1"); err != nil {
		t.Fatalf("nil limiter must allow, got %v", err)
	}
	if err := l.Check(context.Background(), "s1"); err != nil {
		t.Fatalf("nil limiter must allow, got %v", err)
	}
}

func TestLimiterUnavailable(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	l := New(rdb, "sg", 3, time.Minute)
	mr.Close()

	if err := l.Fail(context.Background(), "s1"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}
