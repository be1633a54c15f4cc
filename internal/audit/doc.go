// Package audit implements the append-only security event recorder.
//
// # Components
//
//   - [Event]: one recorded transition with a ULID id and a device snapshot.
//   - [Sink]: consumer of events (channel, JSON lines, Redis stream, no-op).
//   - [Dispatcher]: buffered async relay with drop-if-full or block-if-full semantics.
//
// # Architecture boundaries
//
// This package owns event buffering and sink delivery. It does NOT decide which
// events to emit; that belongs to the engine. Sink failures never reach the
// emitting operation, they are logged and counted.
//
// # What this package must NOT do
//
//   - Filter or suppress events based on business logic.
//   - Import sessiongate or any sibling internal package.
//   - Read events back for control decisions.
package audit
