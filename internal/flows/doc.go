// Package flows contains the orchestrators behind every Authority operation.
//
// Each flow function (RunIssue, RunRotate, RunRevokeFamily, ...) takes a typed
// dependency struct and returns a result value carrying a failure kind. The
// root package maps failure kinds to public errors, metrics, and audit events.
//
// # Architecture boundaries
//
// Flows coordinate the session store, the access-token minter, and the
// refresh throttle. They do not own any of them.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import albumauth (import cycle).
//   - Log, count metrics, or emit audit events.
package flows
