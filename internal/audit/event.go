package audit

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// Kind names a recorded transition.
type Kind string

const (
	KindLogin              Kind = "login"
	KindLogout             Kind = "logout"
	KindRefresh            Kind = "refresh"
	KindReuseDetected      Kind = "reuse_detected"
	KindRiskReauthRequired Kind = "risk_reauth_required"
	KindRevoked            Kind = "revoked"
	KindSessionCreated     Kind = "session_created"
	KindReauthenticated    Kind = "reauthenticated"
	KindRotateShortened    Kind = "rotate_shortened"
)

// Event is one append-only security record. Context is the device and
// network snapshot at the time of the event; Detail carries kind-specific
// values such as the revocation reason or risk delta.
type Event struct {
	ID        string            `json:"id"`
	Kind      Kind              `json:"kind"`
	SessionID string            `json:"session_id,omitempty"`
	UserID    string            `json:"user_id,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Context   map[string]string `json:"context,omitempty"`
	Detail    map[string]string `json:"detail,omitempty"`
}

// New builds an event stamped with a fresh time-sortable id.
func New(kind Kind, sessionID, userID string, at time.Time) Event {
	return Event{
		ID:        NewID(at),
		Kind:      kind,
		SessionID: sessionID,
		UserID:    userID,
		Timestamp: at.UTC(),
	}
}

// NewID returns a ULID whose time component is at.
func NewID(at time.Time) string {
	return ulid.MustNew(ulid.Timestamp(at), ulid.DefaultEntropy()).String()
}
