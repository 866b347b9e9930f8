// Package refresh implements generation and structural validation of opaque refresh
// credentials and the identifiers that group them into families.
//
// # Credential format
//
// A refresh id is 32 bytes from crypto/rand encoded as unpadded base64url
// (43 characters). It carries no structure; everything about it lives in the
// session store. The store never sees the id itself, only its keyed BLAKE2b-256
// digest ([Digester]), so a dump of the store does not yield usable credentials.
//
// Family ids are ULIDs: time-sortable, with 80 bits of crypto/rand entropy.
//
// # What this package must NOT do
//
//   - Access the key-value store or any I/O.
//   - Implement rotation, reuse detection, or revocation.
package refresh
