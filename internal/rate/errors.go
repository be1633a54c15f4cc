package rate

import "errors"

var (
	// ErrLimited is returned once a key has used its attempt budget.
	ErrLimited = errors.New("rate limited")
	// ErrUnavailable wraps Redis failures.
	ErrUnavailable = errors.New("rate limiter unavailable")
)
