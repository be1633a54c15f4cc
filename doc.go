// Package sessiongate is a session and refresh-token security engine. It
// issues short-lived signed access tokens, rotates opaque refresh
// credentials along a per-session chain, detects refresh credential reuse
// and keeps a cumulative risk score per session from device and network
// drift.
//
// Engine methods are safe to call from multiple goroutines after
// initialization through [Builder.Build].
//
// # Credential lifecycle
//
// [Engine.Login] creates a session and the first chain head. Every
// [Engine.Refresh] consumes the presented head and links a new one to it in
// a single atomic store operation, so exactly one of any number of
// concurrent exchanges of the same secret succeeds. Presenting a consumed
// secret again revokes the whole session and returns [ErrReuseDetected].
//
// # Risk
//
// Each refresh or [Engine.Touch] scores the observed device context against
// the one recorded for the session. At the rotate threshold the next
// refresh credential carries [RefreshConfig.ReducedTTL]; at the reauth
// threshold the session moves to reauth_required and only
// [Engine.Reauthenticate] returns it to active.
//
// # Architecture boundaries
//
// The root package exposes [Engine], [Builder], [Config] and value types.
// Storage (session, refresh, postgres), token signing (jwt), scoring (risk)
// and event dispatch (internal/audit) live in sub-packages. Engine never
// logs secrets or credential hashes, and every storage call runs under
// [StorageConfig.OperationTimeout].
package sessiongate
