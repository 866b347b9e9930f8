package albumauth

import (
	"context"
	"errors"
	"strconv"

	"github.com/MrEthical07/albumauth/internal/flows"
	"github.com/google/uuid"
)

const (
	auditEventSessionIssued            = "session_issued"
	auditEventRefreshSuccess           = "refresh_success"
	auditEventRefreshInvalid           = "refresh_invalid"
	auditEventRefreshFamilyCompromised = "refresh_family_compromised"
	auditEventRefreshReuseDetected     = "refresh_reuse_detected"
	auditEventRefreshRateLimited       = "refresh_rate_limited"
	auditEventFamilyRevoked            = "family_revoked"
	auditEventMemberSessionsRevoked    = "member_sessions_revoked"
)

// AuditErrorCode is the stable error code carried in [AuditEvent.Error].
type AuditErrorCode string

const (
	auditErrInvalidToken      AuditErrorCode = "invalid_refresh_token"
	auditErrFamilyCompromised AuditErrorCode = "family_compromised"
	auditErrRefreshReuse      AuditErrorCode = "refresh_reuse"
	auditErrRateLimited       AuditErrorCode = "rate_limited"
	auditErrUnavailable       AuditErrorCode = "store_unavailable"
	auditErrInternal          AuditErrorCode = "internal_error"
)

func (a *Authority) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	memberID string,
	familyID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if a == nil || a.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		EventID:   uuid.NewString(),
		Timestamp: a.now().UTC(),
		EventType: eventType,
		MemberID:  memberID,
		FamilyID:  familyID,
		RequestID: RequestIDFromContext(ctx),
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	a.audit.Emit(ctx, event)
}

func (a *Authority) emitFamilyRevoked(ctx context.Context, memberID string, reason RevocationReason, res flows.RevokeResult) {
	if res.Err != nil {
		return
	}
	a.emitAudit(ctx, auditEventFamilyRevoked, true, memberID, res.FamilyID, nil, func() map[string]string {
		return map[string]string{
			"reason":          string(reason),
			"family_status":   string(res.Status),
			"members_revoked": strconv.Itoa(res.Revoked),
		}
	})
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidRefreshToken):
		return auditErrInvalidToken
	case errors.Is(err, ErrFamilyCompromised):
		return auditErrFamilyCompromised
	case errors.Is(err, ErrRefreshTokenReused):
		return auditErrRefreshReuse
	case errors.Is(err, ErrRefreshRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrStoreUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
