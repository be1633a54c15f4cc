// Package postgres implements the session and refresh credential stores and
// a security event sink on PostgreSQL through pgx.
//
// Every multi-step write runs in one transaction holding a row lock
// (SELECT ... FOR UPDATE), which gives Exchange the same single-winner
// guarantee the Redis store gets from its Lua script. Platform-wide
// revocation is a single UPDATE rather than an epoch.
//
// The schema lives in the embedded migrations directory and is applied with
// [Migrate].
package postgres
