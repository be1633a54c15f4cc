package jwt

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"strings"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
)

func newEdKeys(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate ed25519 key: %v", err)
	}
	return pub, priv
}

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func newTestManager(t *testing.T, clock *fakeClock) (*Manager, ed25519.PrivateKey) {
	t.Helper()
	_, priv := newEdKeys(t)
	m, err := NewManager(Config{
		SigningMethod: MethodEd25519,
		PrivateKey:    priv,
		Issuer:        "sessiongate",
		Audience:      "api",
		Now:           clock.Now,
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return m, priv
}

func TestIssueVerifyRoundTrip(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	m, _ := newTestManager(t, clock)

	token, exp, err := m.Issue("sess-1", "user-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if m.TTL() != DefaultAccessTTL {
		t.Fatalf("expected default ttl, got %v", m.TTL())
	}
	if want := clock.now.Add(DefaultAccessTTL).Truncate(time.Second); !exp.Equal(want) {
		t.Fatalf("expected expiry %v, got %v", want, exp)
	}

	id, err := m.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if id.UserID != "user-1" || id.SessionID != "sess-1" {
		t.Fatalf("unexpected identity: %+v", id)
	}
	if id.TokenID == "" {
		t.Fatal("expected jti to be set")
	}
}

func TestVerifyDistinguishesExpiredFromMalformed(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	m, _ := newTestManager(t, clock)

	token, _, err := m.Issue("sess-1", "user-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	clock.now = clock.now.Add(DefaultAccessTTL + time.Minute)
	if _, err := m.Verify(token); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}

	clock.now = clock.now.Add(-DefaultAccessTTL)
	parts := strings.Split(token, ".")
	tampered := parts[0] + "." + parts[1] + "." + strings.Repeat("A", len(parts[2]))
	if _, err := m.Verify(tampered); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed for bad signature, got %v", err)
	}
	if _, err := m.Verify("not-a-token"); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed for garbage, got %v", err)
	}
}

func TestVerifyRejectsWrongAlgorithmAndIssuer(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	m, priv := newTestManager(t, clock)

	hs := gjwt.NewWithClaims(gjwt.SigningMethodHS256, Claims{SID: "s", RegisteredClaims: gjwt.RegisteredClaims{
		Subject:   "u",
		ExpiresAt: gjwt.NewNumericDate(clock.now.Add(time.Minute)),
	}})
	hsToken, err := hs.SignedString([]byte("secret-secret-secret-secret-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := m.Verify(hsToken); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected wrong algorithm to be malformed, got %v", err)
	}

	other := gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, Claims{SID: "s", RegisteredClaims: gjwt.RegisteredClaims{
		Subject:   "u",
		Issuer:    "someone-else",
		Audience:  gjwt.ClaimStrings{"api"},
		ExpiresAt: gjwt.NewNumericDate(clock.now.Add(time.Minute)),
	}})
	otherToken, _ := other.SignedString(priv)
	if _, err := m.Verify(otherToken); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected wrong issuer to be malformed, got %v", err)
	}
}

func TestVerifyRequiresSessionClaim(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	m, priv := newTestManager(t, clock)

	tok := gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, Claims{RegisteredClaims: gjwt.RegisteredClaims{
		Subject:   "u",
		Issuer:    "sessiongate",
		Audience:  gjwt.ClaimStrings{"api"},
		ExpiresAt: gjwt.NewNumericDate(clock.now.Add(time.Minute)),
	}})
	signed, _ := tok.SignedString(priv)
	if _, err := m.Verify(signed); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected missing sid to be malformed, got %v", err)
	}
}

func TestKeyRotationWithVerifyKeys(t *testing.T) {
	oldPub, oldPriv := newEdKeys(t)
	newPub, newPriv := newEdKeys(t)

	oldM, err := NewManager(Config{SigningMethod: MethodEd25519, PrivateKey: oldPriv, KeyID: "k1"})
	if err != nil {
		t.Fatalf("old manager: %v", err)
	}
	token, _, err := oldM.Issue("s", "u")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	rotated, err := NewManager(Config{
		SigningMethod: MethodEd25519,
		PrivateKey:    newPriv,
		KeyID:         "k2",
		VerifyKeys:    map[string][]byte{"k1": oldPub, "k2": newPub},
	})
	if err != nil {
		t.Fatalf("rotated manager: %v", err)
	}
	if _, err := rotated.Verify(token); err != nil {
		t.Fatalf("token signed with previous key should verify: %v", err)
	}
}

func TestNewManagerValidation(t *testing.T) {
	if _, err := NewManager(Config{SigningMethod: MethodHS256, PrivateKey: []byte("short")}); err == nil {
		t.Fatal("expected short hs256 key to be rejected")
	}
	if _, err := NewManager(Config{SigningMethod: "rs512"}); err == nil {
		t.Fatal("expected unsupported method to be rejected")
	}
	if _, err := NewManager(Config{SigningMethod: MethodEd25519}); err == nil {
		t.Fatal("expected missing ed25519 key to be rejected")
	}
}
