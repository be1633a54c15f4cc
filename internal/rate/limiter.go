package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter enforces a fixed-window attempt budget per key.
type Limiter struct {
	redis       redis.UniversalClient
	prefix      string
	maxAttempts int
	window      time.Duration
}

// New returns a limiter allowing maxAttempts failures per window. A
// maxAttempts of 0 or a nil client yields a nil Limiter, whose methods
// always allow.
func New(client redis.UniversalClient, prefix string, maxAttempts int, window time.Duration) *Limiter {
	if client == nil || maxAttempts <= 0 || window <= 0 {
		return nil
	}
	return &Limiter{
		redis:       client,
		prefix:      prefix,
		maxAttempts: maxAttempts,
		window:      window,
	}
}

// Check returns ErrLimited when key has exhausted its budget.
func (l *Limiter) Check(ctx context.Context, key string) error {
	if l == nil {
		return nil
	}
	count, err := l.redis.Get(ctx, l.key(key)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if count >= int64(l.maxAttempts) {
		return ErrLimited
	}
	return nil
}

// Fail records one failed attempt and reports ErrLimited when that attempt
// used the last of the budget.
func (l *Limiter) Fail(ctx context.Context, key string) error {
	if l == nil {
		return nil
	}
	k := l.key(key)
	count, err := l.redis.Incr(ctx, k).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	// Fixed window: the TTL is set only on the first hit.
	if count == 1 {
		if err := l.redis.Expire(ctx, k, l.window).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}
	if count >= int64(l.maxAttempts) {
		return ErrLimited
	}
	return nil
}

// Reset clears the counter for key.
func (l *Limiter) Reset(ctx context.Context, key string) error {
	if l == nil {
		return nil
	}
	if err := l.redis.Del(ctx, l.key(key)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Remaining returns the attempts left in the current window.
func (l *Limiter) Remaining(ctx context.Context, key string) (int, error) {
	if l == nil {
		return 0, nil
	}
	count, err := l.redis.Get(ctx, l.key(key)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return l.maxAttempts, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if rest := int64(l.maxAttempts) - count; rest > 0 {
		return int(rest), nil
	}
	return 0, nil
}

func (l *Limiter) key(k string) string {
	return l.prefix + ":rl:reauth:" + k
}
