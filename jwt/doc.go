// Package jwt issues and verifies the short-lived access tokens bound to a
// session id.
//
// Verification checks signature, algorithm, issuer/audience and expiry only.
// Whether the session behind a token is still usable is decided by the
// session layer on every protected request.
package jwt
