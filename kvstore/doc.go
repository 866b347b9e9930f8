// Package kvstore defines the shared key-value store contract used for session
// state and provides a Redis implementation of it.
//
// # Semantics
//
// Every command is individually atomic. There is no general multi-key
// transaction; [Store.Atomic] batches a fixed set of writes through
// MULTI/EXEC, and [Store.CompareAndSetHashField] is the single
// read-modify-write primitive, executed server-side as a Lua script.
//
// A missing or expired key is reported as [ErrNotFound]. Transport failures,
// timeouts, and context cancellation are reported as [ErrUnavailable] with the
// cause retained in the message.
//
// # What this package must NOT do
//
//   - Interpret the values it stores.
//   - Cache anything in process.
package kvstore
