// Package albumauth is the token family authority of the album service: it
// issues access/refresh pairs, rotates refresh credentials, and detects reuse
// of rotated credentials.
//
// Every login starts a family. Each rotation retires the presented refresh
// id and issues the next one in the same family, so at most one record of a
// family is active at any time. Presenting a retired id is treated as theft:
// the whole family is marked compromised and no member of it ever rotates
// again.
//
// # Architecture boundaries
//
// albumauth is the public surface. It exposes [Authority], [Builder], [Config],
// and value types ([TokenPair], [FamilyInfo], [MetricsSnapshot]). Flow
// orchestration, rate limiting, audit dispatch, and metric counters live under
// internal/. Records are kept by the session package behind the kvstore
// abstraction; access tokens are minted by the jwt package.
//
// # What this package must NOT do
//
//   - Cache record or family status in process between calls.
//   - Read a record status and write it back as two steps. The ACTIVE to
//     ROTATED transition is a single compare-and-set in the store.
//   - Expose Redis clients or key layout in its public API.
//
// # Performance contract
//
// VerifyAccess never touches the store. Issue costs one round-trip. Rotate
// costs at most four: two reads, the compare-and-set script, and one
// MULTI/EXEC for the successor record.
package albumauth
