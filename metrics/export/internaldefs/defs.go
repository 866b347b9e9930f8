package internaldefs

import (
	"github.com/MrEthical07/albumauth"
)

// CounterDef names one authority counter for exporters.
type CounterDef struct {
	ID   albumauth.MetricID
	Name string
	Help string
}

// HistogramDef names one authority latency histogram for exporters.
type HistogramDef struct {
	ID   albumauth.MetricID
	Name string
	Help string
}

var CounterDefs = []CounterDef{
	{ID: albumauth.MetricSessionIssued, Name: "albumauth_session_issued_total", Help: "Families started by Issue."},
	{ID: albumauth.MetricIssueFailure, Name: "albumauth_issue_failure_total", Help: "Issue calls that failed after validation."},
	{ID: albumauth.MetricRefreshSuccess, Name: "albumauth_refresh_success_total", Help: "Successful rotations."},
	{ID: albumauth.MetricRefreshInvalid, Name: "albumauth_refresh_invalid_total", Help: "Rotations rejected for an unknown, expired, or malformed refresh id."},
	{ID: albumauth.MetricRefreshFamilyCompromised, Name: "albumauth_refresh_family_compromised_total", Help: "Rotations rejected because the family was no longer active."},
	{ID: albumauth.MetricRefreshReuseDetected, Name: "albumauth_refresh_reuse_detected_total", Help: "Presentations of an already-rotated refresh id."},
	{ID: albumauth.MetricRefreshRateLimited, Name: "albumauth_refresh_rate_limited_total", Help: "Rotations rejected by the refresh throttle."},
	{ID: albumauth.MetricRefreshStoreUnavailable, Name: "albumauth_refresh_store_unavailable_total", Help: "Rotations that failed on the session store."},
	{ID: albumauth.MetricFamilyCompromised, Name: "albumauth_family_compromised_total", Help: "Families revoked as compromised."},
	{ID: albumauth.MetricFamilyRevoked, Name: "albumauth_family_revoked_total", Help: "Families revoked by logout or administrator."},
	{ID: albumauth.MetricLogout, Name: "albumauth_logout_total", Help: "Logout operations."},
	{ID: albumauth.MetricMemberSessionsRevoked, Name: "albumauth_member_sessions_revoked_total", Help: "Revoke-all operations for a member."},
	{ID: albumauth.MetricAccessVerifyFailure, Name: "albumauth_access_verify_failure_total", Help: "Access tokens that failed verification."},
}

var HistogramDefs = []HistogramDef{
	{ID: albumauth.MetricRotateLatency, Name: "albumauth_rotate_latency_seconds", Help: "Rotate latency histogram."},
}

// HistogramUpperBounds are the finite bucket bounds in seconds, matching the
// authority's millisecond buckets. The last authority bucket is +Inf.
var HistogramUpperBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

const (
	AuditDroppedName   = "albumauth_audit_dropped_total"
	AuditDroppedHelp   = "Dropped audit events due to dispatcher backpressure."
	AuditDeliveredName = "albumauth_audit_delivered_total"
	AuditDeliveredHelp = "Audit events handed to the sink."
)

// NormalizeBuckets pads or truncates raw to the eight authority buckets.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
