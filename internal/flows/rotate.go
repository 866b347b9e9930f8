package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/albumauth/kvstore"
	"github.com/MrEthical07/albumauth/session"
)

// RotateFailureKind classifies rotate flow failures for root-level mapping.
type RotateFailureKind int

const (
	RotateFailureNone RotateFailureKind = iota
	RotateFailureMalformed
	RotateFailureRateLimited
	RotateFailureNotFound
	RotateFailureCorrupt
	RotateFailureFamilyInactive
	RotateFailureReuse
	RotateFailureStore
	RotateFailureNewID
	RotateFailureMintAccess
)

// RotateResult carries either the next token pair or failure metadata.
//
// Revoke is populated when the reuse path ran. SuccessorRevoked is set on a
// successful rotation whose family was revoked while the next record was
// being written; SuccessorErr reports a failed check or mark in that window.
type RotateResult struct {
	Failure          RotateFailureKind
	Err              error
	RecordID         string
	MemberID         string
	FamilyID         string
	FamilyStatus     session.FamilyStatus
	ObservedStatus   session.Status
	Revoke           *RevokeResult
	NextRecordID     string
	SuccessorRevoked bool
	SuccessorErr     error
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

type RotateRateLimiter interface {
	CheckRefresh(ctx context.Context, recordID string) error
}

type RotateStore interface {
	RevokeStore
	GetFamilyStatus(ctx context.Context, familyID string) (session.FamilyStatus, error)
	GetRecord(ctx context.Context, recordID string) (*session.Record, error)
	CompareAndSetStatus(ctx context.Context, recordID string, from, to session.Status) (kvstore.CASResult, session.Status, error)
	CreateRecord(ctx context.Context, rec *session.Record, recordTTL, familyTTL time.Duration) error
}

// RotateDeps captures rotate flow dependencies.
type RotateDeps struct {
	Now            func() time.Time
	ParseRefreshID func(string) error
	Digest         func(string) string
	NewRefreshID   func() (string, error)
	MintAccess     func(memberID, username string) (string, time.Time, error)
	RefreshTTL     time.Duration
	FamilyTTL      time.Duration
	RateLimiter    RotateRateLimiter
	Store          RotateStore
}

// RunRotate exchanges a presented refresh id for the next pair in its family.
//
// The compare-and-set of the record status is the only serialization point:
// among concurrent presentations of one id exactly one observes active and
// swaps it to rotated. Every other presenter, and any later one, takes the
// reuse path and the family is marked compromised.
func RunRotate(ctx context.Context, presented string, deps RotateDeps) RotateResult {
	if err := deps.ParseRefreshID(presented); err != nil {
		return RotateResult{Failure: RotateFailureMalformed, Err: err}
	}

	recordID := deps.Digest(presented)

	if deps.RateLimiter != nil {
		if err := deps.RateLimiter.CheckRefresh(ctx, recordID); err != nil {
			return RotateResult{
				Failure:  RotateFailureRateLimited,
				Err:      err,
				RecordID: recordID,
			}
		}
	}

	rec, err := deps.Store.GetRecord(ctx, recordID)
	if err != nil {
		return RotateResult{
			Failure:  lookupFailure(err),
			Err:      err,
			RecordID: recordID,
		}
	}

	base := RotateResult{
		RecordID:       recordID,
		MemberID:       rec.MemberID,
		FamilyID:       rec.FamilyID,
		ObservedStatus: rec.Status,
	}

	familyStatus, err := deps.Store.GetFamilyStatus(ctx, rec.FamilyID)
	switch {
	case errors.Is(err, session.ErrNotFound):
		// Record alive without a family flag: inconsistent, fail closed.
		base.Failure = RotateFailureFamilyInactive
		base.Err = err
		return base
	case err != nil:
		base.Failure = RotateFailureStore
		base.Err = err
		return base
	}
	base.FamilyStatus = familyStatus
	if familyStatus != session.FamilyActive {
		base.Failure = RotateFailureFamilyInactive
		return base
	}

	if rec.Status != session.StatusActive {
		return reuse(ctx, base, deps)
	}

	cas, observed, err := deps.Store.CompareAndSetStatus(ctx, recordID, session.StatusActive, session.StatusRotated)
	if err != nil {
		base.Failure = RotateFailureStore
		base.Err = err
		return base
	}
	switch cas {
	case kvstore.CASMismatch:
		base.ObservedStatus = observed
		return reuse(ctx, base, deps)
	case kvstore.CASMissing:
		base.Failure = RotateFailureNotFound
		base.Err = session.ErrNotFound
		return base
	}

	nextID, err := deps.NewRefreshID()
	if err != nil {
		base.Failure = RotateFailureNewID
		base.Err = err
		return base
	}

	now := deps.Now()
	refreshExpiresAt := now.Add(deps.RefreshTTL)
	next := &session.Record{
		ID:        deps.Digest(nextID),
		MemberID:  rec.MemberID,
		Username:  rec.Username,
		FamilyID:  rec.FamilyID,
		Status:    session.StatusActive,
		IssuedAt:  now.Unix(),
		ExpiresAt: refreshExpiresAt.Unix(),
	}
	if err := deps.Store.CreateRecord(ctx, next, deps.RefreshTTL, deps.FamilyTTL); err != nil {
		base.Failure = RotateFailureStore
		base.Err = err
		return base
	}

	// A revocation that listed the family before the write above cannot see
	// the new record, so the record revokes itself.
	base.SuccessorRevoked, base.SuccessorErr = revokeLateSuccessor(ctx, rec.FamilyID, next.ID, deps.Store)

	access, accessExpiresAt, err := deps.MintAccess(rec.MemberID, rec.Username)
	if err != nil {
		base.Failure = RotateFailureMintAccess
		base.Err = err
		return base
	}

	base.NextRecordID = next.ID
	base.AccessToken = access
	base.RefreshToken = nextID
	base.AccessExpiresAt = accessExpiresAt
	base.RefreshExpiresAt = refreshExpiresAt.Truncate(time.Second)
	return base
}

func reuse(ctx context.Context, base RotateResult, deps RotateDeps) RotateResult {
	r := RunRevokeFamily(ctx, base.FamilyID, session.FamilyCompromised, RevokeDeps{
		FamilyTTL: deps.FamilyTTL,
		Store:     deps.Store,
	})
	base.Failure = RotateFailureReuse
	base.FamilyStatus = session.FamilyCompromised
	base.Revoke = &r
	base.Err = r.Err
	return base
}

func revokeLateSuccessor(ctx context.Context, familyID, recordID string, store RotateStore) (bool, error) {
	status, err := store.GetFamilyStatus(ctx, familyID)
	switch {
	case err == nil && status == session.FamilyActive:
		return false, nil
	case err != nil && !errors.Is(err, session.ErrNotFound):
		return false, err
	}
	if _, err := store.MarkRevoked(ctx, recordID); err != nil {
		return false, err
	}
	return true, nil
}

func lookupFailure(err error) RotateFailureKind {
	switch {
	case errors.Is(err, session.ErrNotFound):
		return RotateFailureNotFound
	case errors.Is(err, session.ErrCorruptRecord):
		return RotateFailureCorrupt
	default:
		return RotateFailureStore
	}
}
