package sessiongate

import "errors"

// Outcome taxonomy of the engine. Every error returned by [Engine] matches
// one of these with errors.Is; the lower-level cause stays matchable too.
var (
	// ErrExpired reports an access token or refresh credential past its lifetime.
	ErrExpired = errors.New("credential expired")
	// ErrMalformed reports a structurally invalid or badly signed credential.
	ErrMalformed = errors.New("credential malformed")
	// ErrUnknown reports a refresh credential with no matching record.
	ErrUnknown = errors.New("credential unknown")
	// ErrReuseDetected reports presentation of an already consumed refresh
	// credential. The owning session has been revoked when it is returned.
	ErrReuseDetected   = errors.New("refresh credential reuse detected")
	ErrSessionRevoked  = errors.New("session revoked")
	ErrSessionNotFound = errors.New("session not found")
	// ErrReauthRequired reports a session held until the primary credential
	// is verified again.
	ErrReauthRequired = errors.New("re-authentication required")
	// ErrStorageUnavailable reports a persistence failure or timeout. The
	// operation failed closed.
	ErrStorageUnavailable = errors.New("storage unavailable")

	ErrPrimaryCredentialInvalid = errors.New("primary credential invalid")
	// ErrReauthThrottled reports a session that failed primary credential
	// re-verification too often inside the limiter window.
	ErrReauthThrottled      = errors.New("re-authentication attempts exhausted")
	ErrInvalidDeviceContext = errors.New("invalid device context")
	ErrEngineNotReady       = errors.New("engine not initialized")
)
