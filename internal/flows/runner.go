package flows

import (
	"context"
	"time"
)

// Runner bounds a storage call in time and attempts.
type Runner struct {
	// Timeout applies to each attempt separately.
	Timeout    time.Duration
	MaxRetries int
	// Backoff is multiplied by the attempt number before the next try.
	Backoff time.Duration
	// Transient reports whether err may succeed on a new attempt.
	Transient func(error) bool
	// OnRetry is called before each new attempt.
	OnRetry func(attempt int, err error)
	// OnExhausted is called when a transient error survives every attempt.
	OnExhausted func(err error)
}

// Run calls fn until it succeeds, fails with a non-transient error, the
// retry budget is spent or ctx is done. The last error is returned.
func (r Runner) Run(ctx context.Context, fn func(context.Context) error) error {
	var err error
	for attempt := 0; ; attempt++ {
		if cerr := ctx.Err(); cerr != nil {
			if err != nil {
				return err
			}
			return cerr
		}

		err = r.once(ctx, fn)
		if err == nil || r.Transient == nil || !r.Transient(err) {
			return err
		}
		if attempt >= r.MaxRetries {
			if r.OnExhausted != nil {
				r.OnExhausted(err)
			}
			return err
		}

		if r.OnRetry != nil {
			r.OnRetry(attempt+1, err)
		}
		if r.Backoff > 0 {
			timer := time.NewTimer(r.Backoff * time.Duration(attempt+1))
			select {
			case <-ctx.Done():
				timer.Stop()
				return err
			case <-timer.C:
			}
		}
	}
}

func (r Runner) once(ctx context.Context, fn func(context.Context) error) error {
	if r.Timeout <= 0 {
		return fn(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()
	return fn(attemptCtx)
}

// Do is Run for calls that produce a value.
func Do[T any](ctx context.Context, r Runner, fn func(context.Context) (T, error)) (T, error) {
	var out T
	err := r.Run(ctx, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}
