// Package risk scores how far a request's device context has drifted from the
// context recorded on its session.
//
// Scoring is pure: [Score] and [Policy.Assess] read their arguments only.
// Deltas are additive and the cumulative score is non-decreasing; resetting it
// is the session layer's job after primary re-verification.
package risk
