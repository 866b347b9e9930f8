package session

// Status is the lifecycle state of one refresh record.
type Status string

const (
	StatusActive  Status = "active"
	StatusRotated Status = "rotated"
	StatusRevoked Status = "revoked"
)

// FamilyStatus is the health of a token family. Anything other than
// FamilyActive means the family accepts no further rotation.
type FamilyStatus string

const (
	FamilyActive      FamilyStatus = "active"
	FamilyCompromised FamilyStatus = "compromised"
	FamilyRevoked     FamilyStatus = "revoked"
)

// Record is one issued refresh credential.
//
// ID is the storage identifier of the credential (the digest of the refresh id
// handed to the client), never the presentable value itself.
type Record struct {
	ID       string
	MemberID string
	Username string
	FamilyID string
	Status   Status

	IssuedAt  int64
	ExpiresAt int64
}

const (
	fieldMemberID  = "member_id"
	fieldUsername  = "username"
	fieldFamilyID  = "family_id"
	fieldStatus    = "status"
	fieldIssuedAt  = "issued_at"
	fieldExpiresAt = "expires_at"
)
