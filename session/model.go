package session

import (
	"errors"
	"time"

	"github.com/disappointingsupernova/sessiongate/device"
)

// State is the lifecycle state of a session.
type State uint8

const (
	StateActive State = iota + 1
	StateReauthRequired
	StateRevoked
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateReauthRequired:
		return "reauth_required"
	case StateRevoked:
		return "revoked"
	default:
		return "unknown"
	}
}

// Revocation reasons recorded on a session.
const (
	ReasonLogout          = "logout"
	ReasonLogoutAll       = "logout_all"
	ReasonAdminRevokeAll  = "admin_revoke_all"
	ReasonReuseDetected   = "reuse_detected"
	ReasonIdleTimeout     = "idle_timeout"
	ReasonAbsoluteTimeout = "absolute_timeout"
	// ReasonIssueFailed marks a session whose first credentials could not be stored.
	ReasonIssueFailed = "issue_failed"
)

var (
	ErrNotFound       = errors.New("session: not found")
	ErrRevoked        = errors.New("session: revoked")
	ErrReauthRequired = errors.New("session: reauthentication required")
	ErrExists         = errors.New("session: already exists")
	ErrUnavailable    = errors.New("session: store unavailable")
	ErrCorrupt        = errors.New("session: corrupt record")

	// ErrUnchanged may be returned by an update function to skip the write.
	ErrUnchanged = errors.New("session: unchanged")
)

// Session is the durable security context binding a user, a device and a
// refresh credential chain.
type Session struct {
	ID     string
	UserID string
	Device device.Context
	// Risk is the cumulative risk score; it only resets on re-authentication.
	Risk  int
	State State

	CreatedAt         time.Time
	LastSeenAt        time.Time
	AbsoluteExpiresAt time.Time
	RevokedAt         time.Time
	RevokedReason     string

	// Version increases by one on every persisted write.
	Version uint32
}

// Clone returns a copy of s.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	return &out
}

// ExpiryReason reports which lazy bound s has passed at now, or "".
func (s *Session) ExpiryReason(now time.Time, idle time.Duration) string {
	if !s.AbsoluteExpiresAt.IsZero() && now.After(s.AbsoluteExpiresAt) {
		return ReasonAbsoluteTimeout
	}
	if idle > 0 && now.Sub(s.LastSeenAt) > idle {
		return ReasonIdleTimeout
	}
	return ""
}

// EffectiveState is State with lazy expiry applied.
func (s *Session) EffectiveState(now time.Time, idle time.Duration) State {
	if s.State == StateRevoked || s.ExpiryReason(now, idle) != "" {
		return StateRevoked
	}
	return s.State
}

// IsUsable reports whether s may back an authorized request at now.
func (s *Session) IsUsable(now time.Time, idle time.Duration) bool {
	return s.EffectiveState(now, idle) == StateActive
}

// revoke moves s to the terminal state. It reports false if s was already revoked.
func (s *Session) revoke(at time.Time, reason string) bool {
	if s.State == StateRevoked {
		return false
	}
	s.State = StateRevoked
	s.RevokedAt = at
	s.RevokedReason = reason
	return true
}
