// Package internal groups the private building blocks of albumauth.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - flows: issue, rotate, and revoke orchestration behind small store interfaces
//   - metrics: lock-free counters and the rotate latency histogram
//   - rate: Redis-backed fixed-window refresh throttle
//
// # What this package must NOT do
//
//   - Export types that appear in the public albumauth API except through
//     root aliases.
//   - Be imported from outside the albumauth module.
package internal
