// Package internal holds helpers private to sessiongate: session id and
// refresh secret generation plus the refresh token wire format.
//
// # Sub-packages
//
//   - audit: async security event dispatch (Dispatcher + Sink implementations)
//   - flows: bounded-retry and timeout runners shared by Engine operations
//   - rate: fixed-window attempt limiter guarding re-authentication
//
// # What this package must NOT do
//
//   - Export types that appear in the public sessiongate API.
//   - Log or persist clear-text refresh secrets.
package internal
