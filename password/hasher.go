package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	algorithm = "argon2id"

	// DefaultMaxSecretBytes bounds the input so a huge secret cannot turn a
	// verification into a CPU sink.
	DefaultMaxSecretBytes = 1024

	minMemoryKB   = 8 * 1024
	minSaltLength = 16
	minKeyLength  = 16
)

var (
	ErrMalformedHash = errors.New("password: malformed hash")
	ErrSecretLength  = errors.New("password: secret length out of range")
)

// Params are the Argon2id cost parameters used for new hashes.
type Params struct {
	Memory      uint32 // KiB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32

	MinSecretBytes int
	MaxSecretBytes int // 0 means DefaultMaxSecretBytes
}

// DefaultParams follows the OWASP Argon2id baseline.
func DefaultParams() Params {
	return Params{
		Memory:         64 * 1024,
		Time:           3,
		Parallelism:    2,
		SaltLength:     16,
		KeyLength:      32,
		MinSecretBytes: 10,
	}
}

// Hasher produces and checks Argon2id PHC strings. It is safe for
// concurrent use.
type Hasher struct {
	p Params
}

func NewHasher(p Params) (*Hasher, error) {
	switch {
	case p.Memory < minMemoryKB:
		return nil, fmt.Errorf("password: memory must be >= %d KiB", minMemoryKB)
	case p.Time < 1:
		return nil, errors.New("password: time must be >= 1")
	case p.Parallelism < 1:
		return nil, errors.New("password: parallelism must be >= 1")
	case p.SaltLength < minSaltLength:
		return nil, fmt.Errorf("password: salt length must be >= %d", minSaltLength)
	case p.KeyLength < minKeyLength:
		return nil, fmt.Errorf("password: key length must be >= %d", minKeyLength)
	case p.MinSecretBytes < 0 || p.MaxSecretBytes < 0:
		return nil, errors.New("password: secret bounds must not be negative")
	}
	if p.MaxSecretBytes == 0 {
		p.MaxSecretBytes = DefaultMaxSecretBytes
	}
	if p.MinSecretBytes > p.MaxSecretBytes {
		return nil, errors.New("password: min secret length above max")
	}
	return &Hasher{p: p}, nil
}

// Hash returns the PHC encoding of secret under fresh salt. Bytes are used
// as given, without Unicode normalization.
func (h *Hasher) Hash(secret string) (string, error) {
	if len(secret) < h.p.MinSecretBytes || len(secret) > h.p.MaxSecretBytes {
		return "", ErrSecretLength
	}

	salt := make([]byte, h.p.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	key := argon2.IDKey([]byte(secret), salt, h.p.Time, h.p.Memory, h.p.Parallelism, h.p.KeyLength)

	return encodePHC(phc{
		memory:      h.p.Memory,
		time:        h.p.Time,
		parallelism: h.p.Parallelism,
		salt:        salt,
		key:         key,
	}), nil
}

// Verify reports whether secret matches encoded. The comparison is constant
// time in the key length. Oversized secrets fail before any hashing.
func (h *Hasher) Verify(secret, encoded string) (bool, error) {
	if len(secret) > h.p.MaxSecretBytes {
		return false, ErrSecretLength
	}
	parsed, err := decodePHC(encoded)
	if err != nil {
		return false, err
	}
	key := argon2.IDKey([]byte(secret), parsed.salt, parsed.time, parsed.memory, parsed.parallelism, uint32(len(parsed.key)))
	return subtle.ConstantTimeCompare(key, parsed.key) == 1, nil
}

// NeedsRehash reports whether encoded was produced with weaker parameters
// than the hasher's.
func (h *Hasher) NeedsRehash(encoded string) (bool, error) {
	parsed, err := decodePHC(encoded)
	if err != nil {
		return false, err
	}
	return parsed.memory < h.p.Memory ||
		parsed.time < h.p.Time ||
		parsed.parallelism < h.p.Parallelism ||
		uint32(len(parsed.key)) != h.p.KeyLength, nil
}

type phc struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	key         []byte
}

var b64 = base64.RawStdEncoding

func encodePHC(p phc) string {
	return fmt.Sprintf("$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithm, argon2.Version, p.memory, p.time, p.parallelism,
		b64.EncodeToString(p.salt), b64.EncodeToString(p.key))
}

func decodePHC(encoded string) (phc, error) {
	var out phc
	fields := strings.Split(encoded, "$")
	if len(fields) != 6 || fields[0] != "" || fields[1] != algorithm {
		return out, ErrMalformedHash
	}
	if fields[2] != "v="+strconv.Itoa(argon2.Version) {
		return out, fmt.Errorf("%w: unsupported version %q", ErrMalformedHash, fields[2])
	}

	seen := 0
	for _, kv := range strings.Split(fields[3], ",") {
		name, raw, ok := strings.Cut(kv, "=")
		if !ok {
			return out, ErrMalformedHash
		}
		v, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			return out, ErrMalformedHash
		}
		switch name {
		case "m":
			if v < minMemoryKB {
				return out, ErrMalformedHash
			}
			out.memory = uint32(v)
		case "t":
			if v < 1 {
				return out, ErrMalformedHash
			}
			out.time = uint32(v)
		case "p":
			if v < 1 || v > 255 {
				return out, ErrMalformedHash
			}
			out.parallelism = uint8(v)
		default:
			return out, ErrMalformedHash
		}
		seen++
	}
	if seen != 3 || out.memory == 0 || out.time == 0 || out.parallelism == 0 {
		return out, ErrMalformedHash
	}

	var err error
	if out.salt, err = decodeB64(fields[4]); err != nil || len(out.salt) < minSaltLength {
		return phc{}, ErrMalformedHash
	}
	if out.key, err = decodeB64(fields[5]); err != nil || len(out.key) < minKeyLength {
		return phc{}, ErrMalformedHash
	}
	return out, nil
}

// decodeB64 accepts padded and unpadded standard base64.
func decodeB64(s string) ([]byte, error) {
	return b64.DecodeString(strings.TrimRight(s, "="))
}
