// Package session owns the session lifecycle: creation, risk-driven state
// transitions, revocation and lazy idle/absolute expiry.
//
// # States
//
// A session is active, reauth_required or revoked. Revoked is terminal. A
// session past its idle or absolute bound behaves as revoked on every check
// whether or not the revoked state has been persisted yet.
//
// # Storage
//
// [Manager] drives any [Store]. [RedisStore] keeps sessions in a compact
// versioned binary encoding and serializes per-session writes with
// WATCH/MULTI; different sessions never contend.
//
// # What this package must NOT do
//
//   - Import sessiongate, jwt or refresh (no upward imports).
//   - Verify primary credentials; callers do that before [Manager.Reauthenticated].
package session
