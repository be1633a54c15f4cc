package sessiongate

import (
	"context"
	"time"

	"github.com/disappointingsupernova/sessiongate/device"
	"github.com/disappointingsupernova/sessiongate/risk"
)

// PrimaryVerifier checks a user's primary credential (password, second
// factor). It is owned by the account subsystem; the engine only asks.
type PrimaryVerifier interface {
	VerifyPrimaryCredential(ctx context.Context, userID, secret string) (bool, error)
}

// PrimaryVerifierFunc adapts a function to [PrimaryVerifier].
type PrimaryVerifierFunc func(ctx context.Context, userID, secret string) (bool, error)

func (f PrimaryVerifierFunc) VerifyPrimaryCredential(ctx context.Context, userID, secret string) (bool, error) {
	return f(ctx, userID, secret)
}

// TokenPair is a freshly issued access token and refresh secret. The
// refresh secret is shown once and never stored in clear.
type TokenPair struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// LoginResult is returned by [Engine.Login] and [Engine.Reauthenticate].
type LoginResult struct {
	SessionID string
	TokenPair
}

// RefreshResult is returned by [Engine.Refresh]. Shortened is set when the
// refresh secret carries the reduced lifetime because the session's risk
// reached the rotate threshold.
type RefreshResult struct {
	SessionID string
	TokenPair
	Risk      risk.Assessment
	Shortened bool
}

// AuthResult is the identity behind an authorized access token.
type AuthResult struct {
	UserID    string
	SessionID string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TouchResult reports the risk outcome of [Engine.Touch].
type TouchResult struct {
	State string
	Risk  risk.Assessment
}

// SessionSummary is the caller-facing view of one session. State reflects
// lazy idle and absolute expiry.
type SessionSummary struct {
	ID                string
	UserID            string
	State             string
	Risk              int
	Device            device.Context
	CreatedAt         time.Time
	LastSeenAt        time.Time
	AbsoluteExpiresAt time.Time
	RevokedAt         time.Time
	RevokedReason     string
}

// ChainNode is one refresh credential of a session, for incident forensics.
// Hashes and secrets are not exposed.
type ChainNode struct {
	ID            string
	PredecessorID string
	IssuedAt      time.Time
	ExpiresAt     time.Time
	ConsumedAt    time.Time
	RevokedAt     time.Time
}
