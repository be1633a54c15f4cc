package password

import (
	"context"
	"errors"
	"sync"
)

// ErrUnknownUser is returned by a HashSource that has no hash for a user.
var ErrUnknownUser = errors.New("password: unknown user")

// HashSource yields the stored PHC hash of a user's primary credential.
type HashSource interface {
	PasswordHash(ctx context.Context, userID string) (string, error)
}

// HashSourceFunc adapts a function to HashSource.
type HashSourceFunc func(ctx context.Context, userID string) (string, error)

func (f HashSourceFunc) PasswordHash(ctx context.Context, userID string) (string, error) {
	return f(ctx, userID)
}

// Verifier checks primary credentials against hashes from a HashSource.
type Verifier struct {
	hasher *Hasher
	source HashSource

	// OnRehash, when set, receives a fresh hash after a successful
	// verification against weaker parameters. Errors are ignored.
	OnRehash func(ctx context.Context, userID, hash string) error

	dummyOnce sync.Once
	dummy     string
}

func NewVerifier(h *Hasher, source HashSource) *Verifier {
	return &Verifier{hasher: h, source: source}
}

// VerifyPrimaryCredential reports whether secret is userID's current
// primary credential. An unknown user or an oversized secret is a plain
// mismatch; only source failures are returned as errors.
func (v *Verifier) VerifyPrimaryCredential(ctx context.Context, userID, secret string) (bool, error) {
	if len(secret) > v.hasher.p.MaxSecretBytes {
		return false, nil
	}

	stored, err := v.source.PasswordHash(ctx, userID)
	if errors.Is(err, ErrUnknownUser) {
		_, _ = v.hasher.Verify(secret, v.dummyHash())
		return false, nil
	}
	if err != nil {
		return false, err
	}

	ok, err := v.hasher.Verify(secret, stored)
	if err != nil || !ok {
		return false, err
	}

	if v.OnRehash != nil {
		if stale, _ := v.hasher.NeedsRehash(stored); stale {
			if fresh, err := v.hasher.Hash(secret); err == nil {
				_ = v.OnRehash(ctx, userID, fresh)
			}
		}
	}
	return true, nil
}

// dummyHash is a hash under the current parameters that no secret is
// expected to match.
func (v *Verifier) dummyHash() string {
	v.dummyOnce.Do(func() {
		salt := make([]byte, v.hasher.p.SaltLength)
		key := make([]byte, v.hasher.p.KeyLength)
		v.dummy = encodePHC(phc{
			memory:      v.hasher.p.Memory,
			time:        v.hasher.p.Time,
			parallelism: v.hasher.p.Parallelism,
			salt:        salt,
			key:         key,
		})
	})
	return v.dummy
}
