package password

import (
	"errors"
	"strings"
	"testing"
)

// fastParams keeps tests quick while staying above the minimums.
func fastParams() Params {
	p := DefaultParams()
	p.Memory = minMemoryKB
	p.Time = 1
	p.Parallelism = 1
	return p
}

func mustHasher(t *testing.T, p Params) *Hasher {
	t.Helper()
	h, err := NewHasher(p)
	if err != nil {
		t.Fatalf("NewHasher error: %v", err)
	}
	return h
}

func TestHashAndVerify(t *testing.T) {
	h := mustHasher(t, fastParams())

	hash, err := h.Hash("P@ssw0rd-Ascii")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$v=19$m=8192,t=1,p=1$") {
		t.Fatalf("unexpected PHC prefix: %s", hash)
	}

	ok, err := h.Verify("P@ssw0rd-Ascii", hash)
	if err != nil || !ok {
		t.Fatalf("expected verification to succeed: ok=%v err=%v", ok, err)
	}
	ok, err = h.Verify("wrong-password", hash)
	if err != nil || ok {
		t.Fatalf("expected wrong password to fail: ok=%v err=%v", ok, err)
	}
}

func TestVerifyAcceptsPaddedEncoding(t *testing.T) {
	h := mustHasher(t, fastParams())
	hash, err := h.Hash("correct-password")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}

	fields := strings.Split(hash, "$")
	for len(fields[4])%4 != 0 {
		fields[4] += "="
	}
	for len(fields[5])%4 != 0 {
		fields[5] += "="
	}
	ok, err := h.Verify("correct-password", strings.Join(fields, "$"))
	if err != nil || !ok {
		t.Fatalf("padded hash must verify: ok=%v err=%v", ok, err)
	}
}

func TestNeedsRehash(t *testing.T) {
	weak := mustHasher(t, fastParams())
	hash, err := weak.Hash("correct-password")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}

	strongParams := fastParams()
	strongParams.Time = 2
	strong := mustHasher(t, strongParams)

	if stale, err := strong.NeedsRehash(hash); err != nil || !stale {
		t.Fatalf("expected rehash for weaker params: stale=%v err=%v", stale, err)
	}
	if stale, err := weak.NeedsRehash(hash); err != nil || stale {
		t.Fatalf("same params must not need rehash: stale=%v err=%v", stale, err)
	}
}

func TestVerifyMalformedHash(t *testing.T) {
	h := mustHasher(t, fastParams())
	cases := []string{
		"",
		"not-a-hash",
		"$argon2i$v=19$m=8192,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$a2V5a2V5a2V5a2V5a2V5a2V5",
		"$argon2id$v=16$m=8192,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$a2V5a2V5a2V5a2V5a2V5a2V5",
		"$argon2id$v=19$m=1,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$a2V5a2V5a2V5a2V5a2V5a2V5",
		"$argon2id$v=19$m=8192,t=1$c2FsdHNhbHRzYWx0c2FsdA$a2V5a2V5a2V5a2V5a2V5a2V5",
		"$argon2id$v=19$m=8192,t=1,p=1$c2hvcnQ$a2V5a2V5a2V5a2V5a2V5a2V5",
	}
	for _, encoded := range cases {
		if _, err := h.Verify("correct-password", encoded); !errors.Is(err, ErrMalformedHash) {
			t.Fatalf("expected ErrMalformedHash for %q, got %v", encoded, err)
		}
	}
}

func TestSecretLengthBounds(t *testing.T) {
	p := fastParams()
	p.MaxSecretBytes = 64
	h := mustHasher(t, p)

	if _, err := h.Hash("short"); !errors.Is(err, ErrSecretLength) {
		t.Fatalf("expected short secret rejected, got %v", err)
	}
	if _, err := h.Hash(strings.Repeat("a", 65)); !errors.Is(err, ErrSecretLength) {
		t.Fatalf("expected long secret rejected, got %v", err)
	}

	exact := strings.Repeat("b", 64)
	hash, err := h.Hash(exact)
	if err != nil {
		t.Fatalf("max-length secret must hash: %v", err)
	}
	if _, err := h.Verify(strings.Repeat("c", 65), hash); !errors.Is(err, ErrSecretLength) {
		t.Fatalf("expected oversized verify rejected, got %v", err)
	}
}

func TestDefaultMaxSecretBytesApplied(t *testing.T) {
	h := mustHasher(t, fastParams())
	if _, err := h.Hash(strings.Repeat("d", DefaultMaxSecretBytes+1)); err == nil {
		t.Fatalf("expected secret above %d bytes rejected", DefaultMaxSecretBytes)
	}
}

func TestNewHasherRejectsWeakParams(t *testing.T) {
	p := fastParams()
	p.Memory = 1024
	if _, err := NewHasher(p); err == nil {
		t.Fatalf("expected weak memory to be rejected")
	}
	p = fastParams()
	p.SaltLength = 8
	if _, err := NewHasher(p); err == nil {
		t.Fatalf("expected short salt to be rejected")
	}
}
