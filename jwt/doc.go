// Package jwt mints and verifies the short-lived access tokens paired with every issued
// or rotated refresh credential.
//
// Tokens are stateless: there is no revocation list, and an access token stays
// valid until its own expiry even after its refresh family is revoked.
package jwt
