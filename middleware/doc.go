// Package middleware exposes net/http guards that verify albumauth access
// tokens.
//
// # Guards
//
//   - [Guard] verifies the bearer token and injects its claims.
//   - [RequireRole] additionally requires a specific role claim.
//
// Verification is stateless: a guard never touches the session store, so an
// access token stays usable until it expires even after its family is
// revoked.
//
// # What this package must NOT do
//
//   - Parse or create JWTs directly (delegates to Authority.VerifyAccess).
//   - Rotate or revoke refresh credentials.
package middleware
