// Package rate counts failed primary-credential re-verifications per
// session in Redis and refuses further attempts once a session exceeds its
// budget inside the window.
//
// # Window semantics
//
// Fixed-window counters: INCR + conditional EXPIRE on first hit, keyed
// {prefix}:rl:reauth:{session_id}. A successful verification deletes the
// counter.
package rate
