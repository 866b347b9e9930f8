package flows

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/albumauth/session"
	"golang.org/x/sync/errgroup"
)

const defaultRevokeConcurrency = 8

type RevokeStore interface {
	SetFamilyStatus(ctx context.Context, familyID string, status session.FamilyStatus, ttl time.Duration) error
	SetFamilyStatusUnless(ctx context.Context, familyID string, status, keep session.FamilyStatus, ttl time.Duration) (bool, error)
	FamilyExists(ctx context.Context, familyID string) (bool, error)
	FamilyMembers(ctx context.Context, familyID string) ([]string, error)
	MarkRevoked(ctx context.Context, recordID string) (bool, error)
}

// RevokeDeps captures family revocation dependencies.
type RevokeDeps struct {
	FamilyTTL time.Duration
	Store     RevokeStore
}

// RevokeResult reports one family revocation.
//
// Err is set only when the family status could not be written; the family is
// then still able to rotate. MemberErr collects best-effort failures while
// marking individual records, which do not affect the outcome since the family
// status alone blocks rotation. Absent is set when a logout or administrative
// revocation named a family that no longer exists; nothing was written.
type RevokeResult struct {
	FamilyID  string
	Status    session.FamilyStatus
	Revoked   int
	Absent    bool
	Err       error
	MemberErr error
}

// RunRevokeFamily sets the family status and marks every live member revoked.
//
// A compromised family is never downgraded to revoked, so a later logout or
// admin sweep keeps the theft signal. Members are listed after the status
// write: a rotation that lands its record before the write is listed here,
// and one that lands after it sees the new status and revokes its own record.
func RunRevokeFamily(ctx context.Context, familyID string, status session.FamilyStatus, deps RevokeDeps) RevokeResult {
	res := RevokeResult{FamilyID: familyID, Status: status}

	if status == session.FamilyCompromised {
		if err := deps.Store.SetFamilyStatus(ctx, familyID, status, deps.FamilyTTL); err != nil {
			res.Err = err
			return res
		}
	} else {
		exists, err := deps.Store.FamilyExists(ctx, familyID)
		if err != nil {
			res.Err = err
			return res
		}
		if !exists {
			res.Absent = true
			return res
		}
		written, err := deps.Store.SetFamilyStatusUnless(ctx, familyID, status, session.FamilyCompromised, deps.FamilyTTL)
		if err != nil {
			res.Err = err
			return res
		}
		if !written {
			res.Status = session.FamilyCompromised
		}
	}

	members, err := deps.Store.FamilyMembers(ctx, familyID)
	if err != nil {
		res.MemberErr = err
		return res
	}

	var errs []error
	for _, recordID := range members {
		touched, err := deps.Store.MarkRevoked(ctx, recordID)
		if err != nil {
			errs = append(errs, fmt.Errorf("record %s: %w", recordID, err))
			continue
		}
		if touched {
			res.Revoked++
		}
	}
	res.MemberErr = errors.Join(errs...)

	return res
}

type MemberIndexStore interface {
	MemberFamilies(ctx context.Context, memberID string) ([]string, error)
	DeleteMemberIndex(ctx context.Context, memberID string) error
}

// RevokeAllDeps captures "log out everywhere" dependencies.
type RevokeAllDeps struct {
	Revoke      RevokeDeps
	Index       MemberIndexStore
	Concurrency int
	OnFamily    func(RevokeResult)
}

// RevokeAllResult reports a member-wide revocation. Families counts families
// whose status was written; expired families left in the index are skipped.
type RevokeAllResult struct {
	MemberID string
	Families int
	Err      error
}

// RunRevokeAllForMember revokes every family in the member index with the
// given status, then drops the index. The index is kept when any family
// failed so a retry can find it again.
func RunRevokeAllForMember(ctx context.Context, memberID string, status session.FamilyStatus, deps RevokeAllDeps) RevokeAllResult {
	res := RevokeAllResult{MemberID: memberID}

	families, err := deps.Index.MemberFamilies(ctx, memberID)
	if err != nil {
		res.Err = err
		return res
	}
	if len(families) == 0 {
		return res
	}

	limit := deps.Concurrency
	if limit <= 0 {
		limit = defaultRevokeConcurrency
	}

	var revoked atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, familyID := range families {
		g.Go(func() error {
			r := RunRevokeFamily(gctx, familyID, status, deps.Revoke)
			if deps.OnFamily != nil {
				deps.OnFamily(r)
			}
			if r.Err != nil {
				return r.Err
			}
			if !r.Absent {
				revoked.Add(1)
			}
			return nil
		})
	}
	err = g.Wait()
	res.Families = int(revoked.Load())
	if err != nil {
		res.Err = err
		return res
	}

	if err := deps.Index.DeleteMemberIndex(ctx, memberID); err != nil {
		res.Err = err
	}
	return res
}

// LogoutDeps captures single-family logout dependencies.
type LogoutDeps struct {
	ParseRefreshID func(string) error
	Digest         func(string) string
	Records        interface {
		GetRecord(ctx context.Context, recordID string) (*session.Record, error)
	}
	Revoke RevokeDeps
}

// LogoutResult reports a logout. Failure is LogoutFailureNone on success.
type LogoutResult struct {
	Failure  LogoutFailureKind
	Err      error
	MemberID string
	Revoke   RevokeResult
}

// LogoutFailureKind classifies logout failures.
type LogoutFailureKind int

const (
	LogoutFailureNone LogoutFailureKind = iota
	LogoutFailureMalformed
	LogoutFailureNotFound
	LogoutFailureStore
)

// RunLogout revokes the family of the presented refresh id.
func RunLogout(ctx context.Context, refreshID string, deps LogoutDeps) LogoutResult {
	if err := deps.ParseRefreshID(refreshID); err != nil {
		return LogoutResult{Failure: LogoutFailureMalformed, Err: err}
	}

	rec, err := deps.Records.GetRecord(ctx, deps.Digest(refreshID))
	if err != nil {
		if errors.Is(err, session.ErrNotFound) || errors.Is(err, session.ErrCorruptRecord) {
			return LogoutResult{Failure: LogoutFailureNotFound, Err: err}
		}
		return LogoutResult{Failure: LogoutFailureStore, Err: err}
	}

	r := RunRevokeFamily(ctx, rec.FamilyID, session.FamilyRevoked, deps.Revoke)
	if r.Err != nil {
		return LogoutResult{Failure: LogoutFailureStore, Err: r.Err, MemberID: rec.MemberID, Revoke: r}
	}
	return LogoutResult{MemberID: rec.MemberID, Revoke: r}
}
