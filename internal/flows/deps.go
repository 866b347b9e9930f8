package flows

// Deps groups flow dependency sets. The root Authority builds this once and
// delegates each operation to the matching flow.
type Deps struct {
	Issue     IssueDeps
	Rotate    RotateDeps
	Revoke    RevokeDeps
	RevokeAll RevokeAllDeps
	Logout    LogoutDeps
	Families  FamiliesDeps
}
