package refresh

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/disappointingsupernova/sessiongate/internal"
	"github.com/google/uuid"
)

// Defaults.
const (
	DefaultTTL            = 30 * 24 * time.Hour
	DefaultReducedTTL     = 24 * time.Hour
	DefaultChainRetention = 90 * 24 * time.Hour
	MinPepperLength       = 32
)

var (
	ErrUnknown     = errors.New("refresh: unknown credential")
	ErrExpired     = errors.New("refresh: credential expired")
	ErrReuse       = errors.New("refresh: credential reuse detected")
	ErrRevoked     = errors.New("refresh: credential revoked")
	ErrMalformed   = errors.New("refresh: malformed token")
	ErrUnavailable = errors.New("refresh: store unavailable")
)

// Credential is one node of a session's rotation chain.
type Credential struct {
	ID            string
	SessionID     string
	Hash          string
	PredecessorID string
	IssuedAt      time.Time
	ExpiresAt     time.Time
	ConsumedAt    time.Time
	RevokedAt     time.Time
}

// Consumed reports whether the node has been exchanged.
func (c *Credential) Consumed() bool { return !c.ConsumedAt.IsZero() }

// Revoked reports whether the node was revoked without being exchanged.
func (c *Credential) Revoked() bool { return !c.RevokedAt.IsZero() }

// Next describes the node minted by a successful exchange. SessionID and
// PredecessorID are filled in by the store from the consumed node.
type Next struct {
	ID        string
	Hash      string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Exchange is the result of a store exchange. On [ErrReuse], [ErrExpired] and
// [ErrRevoked] Presented is still set so the caller knows the owning session.
type Exchange struct {
	Presented *Credential
	Issued    *Credential
}

// Store persists chain nodes. Exchange must be a single atomic
// check-and-set: for concurrent calls with the same hash exactly one succeeds.
type Store interface {
	Insert(ctx context.Context, c *Credential) error
	Lookup(ctx context.Context, hash string) (*Credential, error)
	Exchange(ctx context.Context, hash string, next Next, now time.Time) (Exchange, error)
	RevokeSession(ctx context.Context, sessionID string, at time.Time) (int, error)
	Chain(ctx context.Context, sessionID string) ([]*Credential, error)
}

// Hasher derives lookup hashes from clear secrets.
type Hasher struct {
	pepper []byte
}

// NewHasher returns a hasher keyed with pepper.
func NewHasher(pepper []byte) (*Hasher, error) {
	if len(pepper) < MinPepperLength {
		return nil, errors.New("refresh: pepper must be at least 32 bytes")
	}
	p := make([]byte, len(pepper))
	copy(p, pepper)
	return &Hasher{pepper: p}, nil
}

// Hash returns the stored form of token. Malformed tokens fail with
// [ErrMalformed] before any store access.
func (h *Hasher) Hash(token string) (string, error) {
	secret, err := internal.DecodeRefreshToken(token)
	if err != nil {
		return "", ErrMalformed
	}
	return h.hashSecret(secret[:]), nil
}

func (h *Hasher) hashSecret(secret []byte) string {
	mac := hmac.New(sha256.New, h.pepper)
	mac.Write(secret)
	return hex.EncodeToString(mac.Sum(nil))
}

// Mint generates a clear token and its node description.
func (h *Hasher) Mint(now time.Time, ttl time.Duration) (string, Next, error) {
	secret, err := internal.NewRefreshSecret()
	if err != nil {
		return "", Next{}, err
	}
	return internal.EncodeRefreshToken(secret), Next{
		ID:        uuid.NewString(),
		Hash:      h.hashSecret(secret[:]),
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl),
	}, nil
}

// Head builds the first node of a chain for sessionID from next.
func Head(sessionID string, next Next) *Credential {
	return &Credential{
		ID:        next.ID,
		SessionID: sessionID,
		Hash:      next.Hash,
		IssuedAt:  next.IssuedAt,
		ExpiresAt: next.ExpiresAt,
	}
}
