// Package audit implements async event dispatching for session lifecycle changes.
//
// # Components
//
//   - [Sink]: interface for event consumers (channel, JSON writer, slog, no-op).
//   - [Dispatcher]: buffered async relay with drop-if-full or block-if-full semantics.
//   - [Event]: structured audit record with member, family, request id, and metadata.
//
// # Architecture boundaries
//
// This package owns event buffering and sink delivery. It does not decide which
// events to emit; the Authority does.
//
// # What this package must NOT do
//
//   - Filter or suppress events based on business logic.
//   - Import albumauth or any sibling internal package.
package audit
