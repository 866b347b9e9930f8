package albumauth

import (
	"io"
	"log/slog"
	"time"

	internalaudit "github.com/MrEthical07/albumauth/internal/audit"
	internalmetrics "github.com/MrEthical07/albumauth/internal/metrics"
	"github.com/MrEthical07/albumauth/jwt"
)

// TokenPair is returned by [Authority.Issue] and [Authority.Rotate].
//
// RefreshToken is the opaque refresh id. It is shown to the client exactly
// once and is never stored in plain form.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	FamilyID         string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// AccessClaims is the verified payload of an access token.
type AccessClaims = jwt.AccessClaims

// RevocationReason records why a family was revoked. Reuse marks the family
// compromised; every other reason marks it revoked.
type RevocationReason string

const (
	RevocationReuse  RevocationReason = "reuse"
	RevocationLogout RevocationReason = "logout"
	RevocationAdmin  RevocationReason = "admin"
)

// FamilyStatus mirrors the stored family flag.
type FamilyStatus string

const (
	FamilyActive      FamilyStatus = "active"
	FamilyCompromised FamilyStatus = "compromised"
	FamilyRevoked     FamilyStatus = "revoked"
)

// FamilyInfo describes one live session line of a member.
type FamilyInfo struct {
	FamilyID  string
	Status    FamilyStatus
	CreatedAt time.Time
}

// AuditEvent is a structured audit record emitted by the authority.
type AuditEvent = internalaudit.Event

// AuditSink receives [AuditEvent] values from the audit dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink is an [AuditSink] that discards all events.
type NoOpSink = internalaudit.NoOpSink

type ChannelSink = internalaudit.ChannelSink

type JSONWriterSink = internalaudit.JSONWriterSink

// SlogSink is an [AuditSink] that writes events through a [*slog.Logger].
type SlogSink = internalaudit.SlogSink

func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

func NewSlogSink(logger *slog.Logger) *SlogSink {
	return internalaudit.NewSlogSink(logger)
}

// MetricID identifies a counter or histogram in the in-process metrics.
type MetricID = internalmetrics.MetricID

const (
	MetricSessionIssued            = internalmetrics.MetricSessionIssued
	MetricIssueFailure             = internalmetrics.MetricIssueFailure
	MetricRefreshSuccess           = internalmetrics.MetricRefreshSuccess
	MetricRefreshInvalid           = internalmetrics.MetricRefreshInvalid
	MetricRefreshFamilyCompromised = internalmetrics.MetricRefreshFamilyCompromised
	MetricRefreshReuseDetected     = internalmetrics.MetricRefreshReuseDetected
	MetricRefreshRateLimited       = internalmetrics.MetricRefreshRateLimited
	MetricRefreshStoreUnavailable  = internalmetrics.MetricRefreshStoreUnavailable
	MetricFamilyCompromised        = internalmetrics.MetricFamilyCompromised
	MetricFamilyRevoked            = internalmetrics.MetricFamilyRevoked
	MetricLogout                   = internalmetrics.MetricLogout
	MetricMemberSessionsRevoked    = internalmetrics.MetricMemberSessionsRevoked
	MetricAccessVerifyFailure      = internalmetrics.MetricAccessVerifyFailure
	MetricRotateLatency            = internalmetrics.MetricRotateLatency
)

// Metrics holds the authority's lock-free counters.
type Metrics = internalmetrics.Metrics

// MetricsSnapshot is a point-in-time copy of all metrics.
type MetricsSnapshot = internalmetrics.Snapshot

// NewMetrics creates a [Metrics]. When cfg.Enabled is false every operation
// is a no-op.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return internalmetrics.New(internalmetrics.Config{
		Enabled:       cfg.Enabled,
		EnableLatency: cfg.EnableLatencyHistograms,
	})
}
