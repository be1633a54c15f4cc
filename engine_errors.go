package sessiongate

import (
	"context"
	"errors"

	"github.com/disappointingsupernova/sessiongate/internal/rate"
	"github.com/disappointingsupernova/sessiongate/jwt"
	"github.com/disappointingsupernova/sessiongate/refresh"
	"github.com/disappointingsupernova/sessiongate/session"
)

// isTransient reports the only class of failure the storage runner retries.
func isTransient(err error) bool {
	return errors.Is(err, session.ErrUnavailable) ||
		errors.Is(err, refresh.ErrUnavailable) ||
		errors.Is(err, rate.ErrUnavailable) ||
		errors.Is(err, context.DeadlineExceeded)
}

func mapTokenError(err error) error {
	if errors.Is(err, jwt.ErrExpired) {
		return errors.Join(ErrExpired, err)
	}
	return errors.Join(ErrMalformed, err)
}

func mapSessionError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, session.ErrNotFound):
		return errors.Join(ErrSessionNotFound, err)
	case errors.Is(err, session.ErrRevoked):
		return errors.Join(ErrSessionRevoked, err)
	case errors.Is(err, session.ErrReauthRequired):
		return errors.Join(ErrReauthRequired, err)
	case isStorageFailure(err), errors.Is(err, session.ErrCorrupt), errors.Is(err, session.ErrExists):
		return errors.Join(ErrStorageUnavailable, err)
	default:
		return err
	}
}

func mapRefreshError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, refresh.ErrMalformed):
		return errors.Join(ErrMalformed, err)
	case errors.Is(err, refresh.ErrUnknown):
		return errors.Join(ErrUnknown, err)
	case errors.Is(err, refresh.ErrExpired):
		return errors.Join(ErrExpired, err)
	case errors.Is(err, refresh.ErrReuse):
		return errors.Join(ErrReuseDetected, err)
	case errors.Is(err, refresh.ErrRevoked):
		return errors.Join(ErrSessionRevoked, err)
	case isStorageFailure(err):
		return errors.Join(ErrStorageUnavailable, err)
	default:
		return err
	}
}

// isStorageFailure covers store errors plus deadlines and cancellation,
// which fail closed.
func isStorageFailure(err error) bool {
	return isTransient(err) || errors.Is(err, context.Canceled)
}

func mapLimitError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, rate.ErrLimited):
		return errors.Join(ErrReauthThrottled, err)
	default:
		return errors.Join(ErrStorageUnavailable, err)
	}
}
