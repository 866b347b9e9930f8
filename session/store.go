package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/MrEthical07/albumauth/kvstore"
)

var (
	// ErrNotFound means the record or family key is absent or expired.
	ErrNotFound = kvstore.ErrNotFound
	// ErrUnavailable means the key-value store could not be reached.
	ErrUnavailable = kvstore.ErrUnavailable
	// ErrCorruptRecord is returned when a stored record is missing required fields.
	ErrCorruptRecord = errors.New("session: corrupt record")
)

// Store is the persistence adapter for refresh records and families.
//
//	Performance: every method is one store round-trip, except FamilyMembers
//	callers that then touch each member.
type Store struct {
	kv     kvstore.Store
	prefix string
}

// NewStore creates a [Store] over kv with the given key namespace.
func NewStore(kv kvstore.Store, prefix string) *Store {
	if prefix == "" {
		prefix = "aa"
	}
	return &Store{kv: kv, prefix: prefix}
}

func (s *Store) recordKey(recordID string) string {
	return s.prefix + ":rec:" + recordID
}

func (s *Store) familyStatusKey(familyID string) string {
	return s.prefix + ":fam:" + familyID + ":status"
}

func (s *Store) familyMembersKey(familyID string) string {
	return s.prefix + ":fam:" + familyID + ":members"
}

func (s *Store) memberFamiliesKey(memberID string) string {
	return s.prefix + ":member:" + memberID + ":families"
}

func encodeRecord(rec *Record) map[string]string {
	return map[string]string{
		fieldMemberID:  rec.MemberID,
		fieldUsername:  rec.Username,
		fieldFamilyID:  rec.FamilyID,
		fieldStatus:    string(rec.Status),
		fieldIssuedAt:  strconv.FormatInt(rec.IssuedAt, 10),
		fieldExpiresAt: strconv.FormatInt(rec.ExpiresAt, 10),
	}
}

func decodeRecord(recordID string, fields map[string]string) (*Record, error) {
	rec := &Record{
		ID:       recordID,
		MemberID: fields[fieldMemberID],
		Username: fields[fieldUsername],
		FamilyID: fields[fieldFamilyID],
		Status:   Status(fields[fieldStatus]),
	}
	if rec.MemberID == "" || rec.FamilyID == "" || rec.Status == "" {
		return nil, ErrCorruptRecord
	}

	var err error
	if rec.IssuedAt, err = strconv.ParseInt(fields[fieldIssuedAt], 10, 64); err != nil {
		return nil, fmt.Errorf("%w: issued_at: %v", ErrCorruptRecord, err)
	}
	if rec.ExpiresAt, err = strconv.ParseInt(fields[fieldExpiresAt], 10, 64); err != nil {
		return nil, fmt.Errorf("%w: expires_at: %v", ErrCorruptRecord, err)
	}
	return rec, nil
}

// CreateFamily writes the first record of a new family together with the
// family status, the member set, and the member index entry, in one batch.
func (s *Store) CreateFamily(ctx context.Context, rec *Record, recordTTL, familyTTL time.Duration) error {
	return s.kv.Atomic(ctx,
		kvstore.PutHashOp(s.recordKey(rec.ID), encodeRecord(rec), recordTTL),
		kvstore.PutStringOp(s.familyStatusKey(rec.FamilyID), string(FamilyActive), familyTTL),
		kvstore.SetAddOp(s.familyMembersKey(rec.FamilyID), familyTTL, rec.ID),
		kvstore.SetAddOp(s.memberFamiliesKey(rec.MemberID), familyTTL, rec.FamilyID),
	)
}

// CreateRecord writes a follow-up record into an existing family and extends
// the family keys so they outlive the new record. The family status is never
// overwritten here, only its TTL.
func (s *Store) CreateRecord(ctx context.Context, rec *Record, recordTTL, familyTTL time.Duration) error {
	return s.kv.Atomic(ctx,
		kvstore.PutHashOp(s.recordKey(rec.ID), encodeRecord(rec), recordTTL),
		kvstore.SetAddOp(s.familyMembersKey(rec.FamilyID), familyTTL, rec.ID),
		kvstore.ExpireOp(s.familyStatusKey(rec.FamilyID), familyTTL),
		kvstore.ExpireOp(s.memberFamiliesKey(rec.MemberID), familyTTL),
	)
}

// GetRecord returns [ErrNotFound] for absent or expired records.
func (s *Store) GetRecord(ctx context.Context, recordID string) (*Record, error) {
	fields, err := s.kv.GetHash(ctx, s.recordKey(recordID))
	if err != nil {
		return nil, err
	}
	return decodeRecord(recordID, fields)
}

// CompareAndSetStatus atomically moves a record from one status to another.
// The status observed by the store is returned alongside the CAS outcome.
func (s *Store) CompareAndSetStatus(ctx context.Context, recordID string, from, to Status) (kvstore.CASResult, Status, error) {
	res, observed, err := s.kv.CompareAndSetHashField(ctx, s.recordKey(recordID), fieldStatus, string(from), string(to))
	if err != nil {
		return res, "", err
	}
	return res, Status(observed), nil
}

// MarkRevoked sets a record to revoked if it still exists. It reports whether
// a record was touched.
func (s *Store) MarkRevoked(ctx context.Context, recordID string) (bool, error) {
	return s.kv.UpdateHashFieldIfExists(ctx, s.recordKey(recordID), fieldStatus, string(StatusRevoked))
}

// GetFamilyStatus returns [ErrNotFound] when the family status key is absent.
func (s *Store) GetFamilyStatus(ctx context.Context, familyID string) (FamilyStatus, error) {
	v, err := s.kv.GetString(ctx, s.familyStatusKey(familyID))
	if err != nil {
		return "", err
	}
	return FamilyStatus(v), nil
}

// SetFamilyStatus overwrites the family status with its own TTL.
func (s *Store) SetFamilyStatus(ctx context.Context, familyID string, status FamilyStatus, ttl time.Duration) error {
	return s.kv.PutString(ctx, s.familyStatusKey(familyID), string(status), ttl)
}

// SetFamilyStatusUnless writes status unless the family currently holds keep.
// It reports whether the write happened.
func (s *Store) SetFamilyStatusUnless(ctx context.Context, familyID string, status, keep FamilyStatus, ttl time.Duration) (bool, error) {
	return s.kv.PutStringUnlessEquals(ctx, s.familyStatusKey(familyID), string(status), string(keep), ttl)
}

// FamilyExists reports whether the family still has a member set.
func (s *Store) FamilyExists(ctx context.Context, familyID string) (bool, error) {
	return s.kv.Exists(ctx, s.familyMembersKey(familyID))
}

// FamilyMembers lists every record id issued under the family.
func (s *Store) FamilyMembers(ctx context.Context, familyID string) ([]string, error) {
	return s.kv.SetMembers(ctx, s.familyMembersKey(familyID))
}

// MemberFamilies lists the family ids the member has started.
func (s *Store) MemberFamilies(ctx context.Context, memberID string) ([]string, error) {
	return s.kv.SetMembers(ctx, s.memberFamiliesKey(memberID))
}

// RemoveMemberFamilies drops family ids from the member index.
func (s *Store) RemoveMemberFamilies(ctx context.Context, memberID string, familyIDs ...string) error {
	return s.kv.SetRemove(ctx, s.memberFamiliesKey(memberID), familyIDs...)
}

// DeleteMemberIndex removes the whole member index.
func (s *Store) DeleteMemberIndex(ctx context.Context, memberID string) error {
	return s.kv.Delete(ctx, s.memberFamiliesKey(memberID))
}

// Ping checks store availability and returns the round-trip latency.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	err := s.kv.Ping(ctx)
	return time.Since(start), err
}
