// Package session persists refresh records, token families, and the member-to-family
// index in the shared key-value store.
//
// # Layout
//
// Two logical tables sit behind one [Store]:
//
//	<prefix>:rec:<recordID>               hash   refresh record
//	<prefix>:fam:<familyID>:status        string family status
//	<prefix>:fam:<familyID>:members       set    record ids ever issued in the family
//	<prefix>:member:<memberID>:families   set    family ids started by the member
//
// # Architecture boundaries
//
// This package owns key naming and field encoding. It does NOT decide status
// transitions, detect reuse, or mint tokens; those belong to the Authority.
// Every write takes an explicit TTL.
//
// # What this package must NOT do
//
//   - Import albumauth, jwt, or endpoint (no upward imports).
//   - Interpret [Status] or [FamilyStatus] values.
//   - Cache records in process.
package session
