package internal

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"strings"
)

type SessionID [16]byte

const (
	refreshSecretSize = 32
	// RefreshTokenPrefix versions the refresh token wire format.
	RefreshTokenPrefix = "sgr1."
)

var ErrMalformedRefreshToken = errors.New("malformed refresh token")

func NewSessionID() (string, error) {
	var sid SessionID
	if _, err := rand.Read(sid[:]); err != nil {
		return "", err
	}
	return sid.String(), nil
}

func (s SessionID) String() string {
	// base64url, no padding, compact
	return base64.RawURLEncoding.EncodeToString(s[:])
}

func ParseSessionID(sessionID string) (SessionID, error) {
	var sid SessionID

	raw, err := base64.RawURLEncoding.DecodeString(sessionID)
	if err != nil {
		return sid, err
	}
	if len(raw) != len(sid) {
		return sid, errors.New("invalid session id size")
	}

	copy(sid[:], raw)
	return sid, nil
}

func NewRefreshSecret() ([refreshSecretSize]byte, error) {
	var secret [refreshSecretSize]byte
	_, err := rand.Read(secret[:])
	return secret, err
}

// EncodeRefreshToken renders secret in the client-held wire format.
func EncodeRefreshToken(secret [refreshSecretSize]byte) string {
	return RefreshTokenPrefix + base64.RawURLEncoding.EncodeToString(secret[:])
}

// DecodeRefreshToken parses the wire format back into the raw secret.
func DecodeRefreshToken(token string) ([refreshSecretSize]byte, error) {
	var secret [refreshSecretSize]byte

	body, ok := strings.CutPrefix(token, RefreshTokenPrefix)
	if !ok {
		return secret, ErrMalformedRefreshToken
	}
	raw, err := base64.RawURLEncoding.DecodeString(body)
	if err != nil || len(raw) != refreshSecretSize {
		return secret, ErrMalformedRefreshToken
	}

	copy(secret[:], raw)
	return secret, nil
}
