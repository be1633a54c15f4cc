// Package flows holds the bounded-retry and timeout runner used around every
// storage call of the engine.
//
// # Architecture boundaries
//
// The runner knows nothing about sessions or credentials. Callers decide
// which errors are transient; the runner only bounds attempts and time.
//
// # What this package must NOT do
//
//   - Retry an error the caller did not classify as transient.
//   - Outlive the caller's context: cancellation stops the next attempt.
//   - Import sessiongate (to avoid import cycles).
package flows
