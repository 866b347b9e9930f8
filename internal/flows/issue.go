package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/albumauth/session"
)

// IssueFailureKind classifies issue flow failures for root-level mapping.
type IssueFailureKind int

const (
	IssueFailureNone IssueFailureKind = iota
	IssueFailureInvalidMember
	IssueFailureNewID
	IssueFailureStore
	IssueFailureMintAccess
)

// IssueResult carries either the new session line or failure metadata.
type IssueResult struct {
	Failure          IssueFailureKind
	Err              error
	MemberID         string
	FamilyID         string
	RecordID         string
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

type IssueStore interface {
	CreateFamily(ctx context.Context, rec *session.Record, recordTTL, familyTTL time.Duration) error
}

// IssueDeps captures issue flow dependencies.
type IssueDeps struct {
	Now          func() time.Time
	NewRefreshID func() (string, error)
	NewFamilyID  func(time.Time) (string, error)
	Digest       func(string) string
	MintAccess   func(memberID, username string) (string, time.Time, error)
	RefreshTTL   time.Duration
	FamilyTTL    time.Duration
	Store        IssueStore
}

// RunIssue starts a new family for the member and returns the first pair.
func RunIssue(ctx context.Context, memberID, username string, deps IssueDeps) IssueResult {
	if memberID == "" {
		return IssueResult{
			Failure: IssueFailureInvalidMember,
			Err:     errors.New("empty member id"),
		}
	}

	now := deps.Now()
	familyID, err := deps.NewFamilyID(now)
	if err != nil {
		return IssueResult{Failure: IssueFailureNewID, Err: err, MemberID: memberID}
	}
	refreshID, err := deps.NewRefreshID()
	if err != nil {
		return IssueResult{Failure: IssueFailureNewID, Err: err, MemberID: memberID, FamilyID: familyID}
	}

	refreshExpiresAt := now.Add(deps.RefreshTTL)
	rec := &session.Record{
		ID:        deps.Digest(refreshID),
		MemberID:  memberID,
		Username:  username,
		FamilyID:  familyID,
		Status:    session.StatusActive,
		IssuedAt:  now.Unix(),
		ExpiresAt: refreshExpiresAt.Unix(),
	}

	if err := deps.Store.CreateFamily(ctx, rec, deps.RefreshTTL, deps.FamilyTTL); err != nil {
		return IssueResult{
			Failure:  IssueFailureStore,
			Err:      err,
			MemberID: memberID,
			FamilyID: familyID,
			RecordID: rec.ID,
		}
	}

	access, accessExpiresAt, err := deps.MintAccess(memberID, username)
	if err != nil {
		return IssueResult{
			Failure:  IssueFailureMintAccess,
			Err:      err,
			MemberID: memberID,
			FamilyID: familyID,
			RecordID: rec.ID,
		}
	}

	return IssueResult{
		Failure:          IssueFailureNone,
		MemberID:         memberID,
		FamilyID:         familyID,
		RecordID:         rec.ID,
		AccessToken:      access,
		RefreshToken:     refreshID,
		AccessExpiresAt:  accessExpiresAt,
		RefreshExpiresAt: refreshExpiresAt.Truncate(time.Second),
	}
}
