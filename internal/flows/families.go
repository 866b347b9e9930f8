package flows

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/MrEthical07/albumauth/session"
)

type FamilyIndexStore interface {
	MemberFamilies(ctx context.Context, memberID string) ([]string, error)
	GetFamilyStatus(ctx context.Context, familyID string) (session.FamilyStatus, error)
	RemoveMemberFamilies(ctx context.Context, memberID string, familyIDs ...string) error
}

// FamilyEntry is one live family in a member listing.
type FamilyEntry struct {
	FamilyID  string
	Status    session.FamilyStatus
	CreatedAt time.Time
}

// FamiliesDeps captures family listing dependencies.
type FamiliesDeps struct {
	FamilyCreatedAt func(string) (time.Time, error)
	Store           FamilyIndexStore
}

// RunListFamilies returns the member's families whose status key still
// exists. Expired entries are pruned from the index as a side effect.
func RunListFamilies(ctx context.Context, memberID string, deps FamiliesDeps) ([]FamilyEntry, error) {
	ids, err := deps.Store.MemberFamilies(ctx, memberID)
	if err != nil {
		return nil, err
	}

	entries := make([]FamilyEntry, 0, len(ids))
	var stale []string
	for _, familyID := range ids {
		status, err := deps.Store.GetFamilyStatus(ctx, familyID)
		if err != nil {
			if errors.Is(err, session.ErrNotFound) {
				stale = append(stale, familyID)
				continue
			}
			return nil, err
		}

		entry := FamilyEntry{FamilyID: familyID, Status: status}
		if deps.FamilyCreatedAt != nil {
			if created, err := deps.FamilyCreatedAt(familyID); err == nil {
				entry.CreatedAt = created
			}
		}
		entries = append(entries, entry)
	}

	slices.SortFunc(entries, func(a, b FamilyEntry) int {
		return strings.Compare(a.FamilyID, b.FamilyID)
	})

	if len(stale) > 0 {
		if err := deps.Store.RemoveMemberFamilies(ctx, memberID, stale...); err != nil {
			return nil, err
		}
	}
	return entries, nil
}
