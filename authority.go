package albumauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	internalaudit "github.com/MrEthical07/albumauth/internal/audit"
	"github.com/MrEthical07/albumauth/internal/flows"
	"github.com/MrEthical07/albumauth/internal/rate"
	"github.com/MrEthical07/albumauth/jwt"
	"github.com/MrEthical07/albumauth/refresh"
	"github.com/MrEthical07/albumauth/session"
)

// Authority is the token family authority: it issues, rotates, and revokes
// refresh credentials and detects reuse of rotated ones.
//
// All methods are safe for concurrent use. The Authority keeps no record or
// family state in process; every decision is made against the store.
type Authority struct {
	config  Config
	logger  *slog.Logger
	store   *session.Store
	jwt     *jwt.Manager
	metrics *Metrics
	audit   *internalaudit.Dispatcher
	flows   flows.Deps
	now     func() time.Time
	closed  atomic.Bool
}

func (a *Authority) ready() error {
	if a == nil || a.closed.Load() {
		return ErrEngineNotReady
	}
	return nil
}

// Issue starts a new family for a member who has just authenticated and
// returns its first token pair.
func (a *Authority) Issue(ctx context.Context, memberID, username string) (*TokenPair, error) {
	if err := a.ready(); err != nil {
		return nil, err
	}
	memberID = strings.TrimSpace(memberID)

	res := flows.RunIssue(ctx, memberID, username, a.flows.Issue)
	switch res.Failure {
	case flows.IssueFailureNone:
	case flows.IssueFailureInvalidMember:
		return nil, ErrInvalidMember
	case flows.IssueFailureStore:
		a.metricInc(MetricIssueFailure)
		a.logger.ErrorContext(ctx, "issue: store write failed",
			slog.String("member_id", memberID), slog.Any("error", res.Err))
		return nil, storeError(res.Err)
	case flows.IssueFailureMintAccess:
		a.metricInc(MetricIssueFailure)
		a.logger.ErrorContext(ctx, "issue: access token minting failed",
			slog.String("member_id", memberID), slog.Any("error", res.Err))
		return nil, fmt.Errorf("%w: %v", ErrTokenMint, res.Err)
	default:
		a.metricInc(MetricIssueFailure)
		return nil, fmt.Errorf("issue: %w", res.Err)
	}

	a.metricInc(MetricSessionIssued)
	a.emitAudit(ctx, auditEventSessionIssued, true, memberID, res.FamilyID, nil, nil)
	a.logger.DebugContext(ctx, "session issued",
		slog.String("member_id", memberID), slog.String("family_id", res.FamilyID))

	return &TokenPair{
		AccessToken:      res.AccessToken,
		RefreshToken:     res.RefreshToken,
		FamilyID:         res.FamilyID,
		AccessExpiresAt:  res.AccessExpiresAt,
		RefreshExpiresAt: res.RefreshExpiresAt,
	}, nil
}

// Rotate exchanges a refresh id for the next pair in its family.
//
// Among any number of concurrent presentations of the same id exactly one
// succeeds. Every other presentation, and any later one, returns
// [ErrRefreshTokenReused] and revokes the whole family as compromised; after
// that every member of the family yields [ErrFamilyCompromised].
func (a *Authority) Rotate(ctx context.Context, presentedRefreshID string) (*TokenPair, error) {
	if err := a.ready(); err != nil {
		return nil, err
	}
	if a.metrics.LatencyEnabled() {
		start := time.Now()
		defer func() { a.metrics.Observe(MetricRotateLatency, time.Since(start)) }()
	}

	res := flows.RunRotate(ctx, presentedRefreshID, a.flows.Rotate)
	switch res.Failure {
	case flows.RotateFailureNone:
		a.metricInc(MetricRefreshSuccess)
		if res.SuccessorErr != nil {
			a.logger.ErrorContext(ctx, "refresh: successor check failed",
				slog.String("family_id", res.FamilyID), slog.Any("error", res.SuccessorErr))
		} else if res.SuccessorRevoked {
			a.logger.WarnContext(ctx, "refresh: family revoked during rotation, successor revoked",
				slog.String("member_id", res.MemberID), slog.String("family_id", res.FamilyID))
		}
		a.emitAudit(ctx, auditEventRefreshSuccess, true, res.MemberID, res.FamilyID, nil, nil)
		a.logger.DebugContext(ctx, "refresh rotated",
			slog.String("member_id", res.MemberID), slog.String("family_id", res.FamilyID))
		return &TokenPair{
			AccessToken:      res.AccessToken,
			RefreshToken:     res.RefreshToken,
			FamilyID:         res.FamilyID,
			AccessExpiresAt:  res.AccessExpiresAt,
			RefreshExpiresAt: res.RefreshExpiresAt,
		}, nil

	case flows.RotateFailureMalformed, flows.RotateFailureNotFound:
		a.metricInc(MetricRefreshInvalid)
		a.emitAudit(ctx, auditEventRefreshInvalid, false, "", "", ErrInvalidRefreshToken, nil)
		return nil, ErrInvalidRefreshToken

	case flows.RotateFailureCorrupt:
		a.metricInc(MetricRefreshInvalid)
		a.logger.ErrorContext(ctx, "refresh: corrupt record", slog.Any("error", res.Err))
		a.emitAudit(ctx, auditEventRefreshInvalid, false, "", "", ErrInvalidRefreshToken, nil)
		return nil, ErrInvalidRefreshToken

	case flows.RotateFailureRateLimited:
		if !errors.Is(res.Err, rate.ErrRateLimited) {
			a.metricInc(MetricRefreshStoreUnavailable)
			a.logger.ErrorContext(ctx, "refresh: throttle unavailable", slog.Any("error", res.Err))
			return nil, storeError(res.Err)
		}
		a.metricInc(MetricRefreshRateLimited)
		a.emitAudit(ctx, auditEventRefreshRateLimited, false, "", "", ErrRefreshRateLimited, nil)
		return nil, ErrRefreshRateLimited

	case flows.RotateFailureFamilyInactive:
		a.metricInc(MetricRefreshFamilyCompromised)
		status := string(res.FamilyStatus)
		if status == "" {
			status = "missing"
		}
		a.logger.WarnContext(ctx, "refresh: family not active",
			slog.String("member_id", res.MemberID),
			slog.String("family_id", res.FamilyID),
			slog.String("family_status", status))
		a.emitAudit(ctx, auditEventRefreshFamilyCompromised, false, res.MemberID, res.FamilyID, ErrFamilyCompromised, func() map[string]string {
			return map[string]string{"family_status": status}
		})
		return nil, ErrFamilyCompromised

	case flows.RotateFailureReuse:
		a.metricInc(MetricRefreshReuseDetected)
		a.logger.WarnContext(ctx, "refresh: reuse detected, family revoked",
			slog.String("member_id", res.MemberID),
			slog.String("family_id", res.FamilyID),
			slog.String("observed_status", string(res.ObservedStatus)))
		a.emitAudit(ctx, auditEventRefreshReuseDetected, false, res.MemberID, res.FamilyID, ErrRefreshTokenReused, func() map[string]string {
			return map[string]string{"observed_status": string(res.ObservedStatus)}
		})
		if res.Revoke != nil {
			a.observeFamilyRevoke(*res.Revoke)
			a.emitFamilyRevoked(ctx, res.MemberID, RevocationReuse, *res.Revoke)
		}
		return nil, ErrRefreshTokenReused

	case flows.RotateFailureStore:
		a.metricInc(MetricRefreshStoreUnavailable)
		a.logger.ErrorContext(ctx, "refresh: store failure",
			slog.String("family_id", res.FamilyID), slog.Any("error", res.Err))
		return nil, storeError(res.Err)

	case flows.RotateFailureMintAccess:
		a.logger.ErrorContext(ctx, "refresh: access token minting failed",
			slog.String("family_id", res.FamilyID), slog.Any("error", res.Err))
		return nil, fmt.Errorf("%w: %v", ErrTokenMint, res.Err)

	default:
		return nil, fmt.Errorf("refresh: %w", res.Err)
	}
}

// RevokeFamily marks the family with the status implied by reason and revokes
// every member still in the store. It is idempotent. A compromised family
// stays compromised whatever the reason. A logout or admin revocation of a
// family that has expired or never existed succeeds without writing anything.
func (a *Authority) RevokeFamily(ctx context.Context, familyID string, reason RevocationReason) error {
	if err := a.ready(); err != nil {
		return err
	}
	if _, err := refresh.ParseFamilyID(familyID); err != nil {
		return err
	}
	status, err := familyStatusFor(reason)
	if err != nil {
		return err
	}

	res := flows.RunRevokeFamily(ctx, familyID, status, a.flows.Revoke)
	a.observeFamilyRevoke(res)
	if res.Err != nil {
		return storeError(res.Err)
	}
	if res.Absent {
		a.logger.DebugContext(ctx, "revoke: family already gone", slog.String("family_id", familyID))
		return nil
	}
	a.emitFamilyRevoked(ctx, "", reason, res)
	return nil
}

// RevokeAllFamiliesForMember revokes every family the member has started and
// returns how many were revoked. Existing access tokens stay valid until
// they expire.
func (a *Authority) RevokeAllFamiliesForMember(ctx context.Context, memberID string) (int, error) {
	if err := a.ready(); err != nil {
		return 0, err
	}
	memberID = strings.TrimSpace(memberID)
	if memberID == "" {
		return 0, ErrInvalidMember
	}

	res := flows.RunRevokeAllForMember(ctx, memberID, session.FamilyRevoked, a.flows.RevokeAll)
	if res.Err != nil {
		a.logger.ErrorContext(ctx, "revoke all: store failure",
			slog.String("member_id", memberID),
			slog.Int("revoked", res.Families),
			slog.Any("error", res.Err))
		return res.Families, storeError(res.Err)
	}

	a.metricInc(MetricMemberSessionsRevoked)
	a.emitAudit(ctx, auditEventMemberSessionsRevoked, true, memberID, "", nil, func() map[string]string {
		return map[string]string{"families": strconv.Itoa(res.Families)}
	})
	a.logger.InfoContext(ctx, "member sessions revoked",
		slog.String("member_id", memberID), slog.Int("families", res.Families))
	return res.Families, nil
}

// Logout revokes the family of the presented refresh id.
func (a *Authority) Logout(ctx context.Context, refreshID string) error {
	if err := a.ready(); err != nil {
		return err
	}

	res := flows.RunLogout(ctx, refreshID, a.flows.Logout)
	switch res.Failure {
	case flows.LogoutFailureNone:
	case flows.LogoutFailureMalformed, flows.LogoutFailureNotFound:
		return ErrInvalidRefreshToken
	default:
		a.logger.ErrorContext(ctx, "logout: store failure", slog.Any("error", res.Err))
		return storeError(res.Err)
	}

	a.metricInc(MetricLogout)
	a.observeFamilyRevoke(res.Revoke)
	a.emitFamilyRevoked(ctx, res.MemberID, RevocationLogout, res.Revoke)
	return nil
}

// Families lists the member's families that have not expired.
func (a *Authority) Families(ctx context.Context, memberID string) ([]FamilyInfo, error) {
	if err := a.ready(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(memberID) == "" {
		return nil, ErrInvalidMember
	}

	entries, err := flows.RunListFamilies(ctx, memberID, a.flows.Families)
	if err != nil {
		return nil, storeError(err)
	}
	out := make([]FamilyInfo, 0, len(entries))
	for _, e := range entries {
		out = append(out, FamilyInfo{
			FamilyID:  e.FamilyID,
			Status:    FamilyStatus(e.Status),
			CreatedAt: e.CreatedAt,
		})
	}
	return out, nil
}

// VerifyAccess checks an access token without touching the store.
func (a *Authority) VerifyAccess(ctx context.Context, accessToken string) (*AccessClaims, error) {
	if err := a.ready(); err != nil {
		return nil, err
	}
	claims, err := a.jwt.Verify(accessToken)
	if err != nil {
		a.metricInc(MetricAccessVerifyFailure)
		return nil, err
	}
	return claims, nil
}

// Ping reports store reachability and round-trip latency.
func (a *Authority) Ping(ctx context.Context) (time.Duration, error) {
	if err := a.ready(); err != nil {
		return 0, err
	}
	d, err := a.store.Ping(ctx)
	if err != nil {
		return d, storeError(err)
	}
	return d, nil
}

// AccessTTL is the configured access-token lifetime.
func (a *Authority) AccessTTL() time.Duration {
	return a.config.Access.TTL
}

// RefreshTTL is the configured refresh-record lifetime.
func (a *Authority) RefreshTTL() time.Duration {
	return a.config.Refresh.TTL
}

func (a *Authority) MetricsSnapshot() MetricsSnapshot {
	if a == nil {
		return NewMetrics(MetricsConfig{}).Snapshot()
	}
	return a.metrics.Snapshot()
}

// AuditDropped returns the number of audit events dropped because the
// dispatcher buffer was full.
func (a *Authority) AuditDropped() uint64 {
	if a == nil {
		return 0
	}
	return a.audit.Dropped()
}

// AuditDelivered returns the number of audit events handed to the sink.
func (a *Authority) AuditDelivered() uint64 {
	if a == nil {
		return 0
	}
	return a.audit.Delivered()
}

// Close flushes pending audit events. The Authority rejects calls afterwards.
// It does not close the store client.
func (a *Authority) Close() {
	if a == nil || !a.closed.CompareAndSwap(false, true) {
		return
	}
	a.audit.Close()
}

func (a *Authority) metricInc(id MetricID) {
	a.metrics.Inc(id)
}

func (a *Authority) observeFamilyRevoke(res flows.RevokeResult) {
	if res.Absent {
		return
	}
	if res.Err != nil {
		a.logger.Error("family revoke failed",
			slog.String("family_id", res.FamilyID), slog.Any("error", res.Err))
		return
	}
	if res.MemberErr != nil {
		a.logger.Warn("family revoke: some members not marked",
			slog.String("family_id", res.FamilyID), slog.Any("error", res.MemberErr))
	}
	switch res.Status {
	case session.FamilyCompromised:
		a.metricInc(MetricFamilyCompromised)
	default:
		a.metricInc(MetricFamilyRevoked)
	}
}

func familyStatusFor(reason RevocationReason) (session.FamilyStatus, error) {
	switch reason {
	case RevocationReuse:
		return session.FamilyCompromised, nil
	case RevocationLogout, RevocationAdmin:
		return session.FamilyRevoked, nil
	default:
		return "", fmt.Errorf("unknown revocation reason %q", reason)
	}
}

func storeError(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
}
