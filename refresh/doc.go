// Package refresh manages the rotation chain of refresh credentials.
//
// # Token format
//
// The client holds "sgr1." followed by 32 random bytes in base64url. Stores keep
// only HMAC-SHA256(pepper, secret); the clear secret is never persisted or logged.
//
// # Chain
//
// Every successful exchange marks the presented node consumed and appends a new
// node whose PredecessorID points back to it, in one atomic step. Nodes are never
// deleted by normal operation; [Store.Chain] returns them for incident forensics.
// Presenting a consumed node again is reported as [ErrReuse].
//
// # What this package must NOT do
//
//   - Import sessiongate, jwt or session.
//   - Decide what a reuse means for the owning session; the engine does that.
package refresh
