package prometheus

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MrEthical07/albumauth"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type fakeSource struct {
	snapshot  albumauth.MetricsSnapshot
	dropped   uint64
	delivered uint64
}

func (f fakeSource) MetricsSnapshot() albumauth.MetricsSnapshot { return f.snapshot }
func (f fakeSource) AuditDropped() uint64                       { return f.dropped }
func (f fakeSource) AuditDelivered() uint64                     { return f.delivered }

func TestCollectEmptyWhenMetricsDisabled(t *testing.T) {
	c := NewCollectorFromSource(fakeSource{
		snapshot: albumauth.MetricsSnapshot{
			Counters:   map[albumauth.MetricID]uint64{},
			Histograms: map[albumauth.MetricID][]uint64{},
		},
	})

	if n := testutil.CollectAndCount(c); n != 0 {
		t.Fatalf("expected no series for disabled metrics, got %d", n)
	}
}

func TestCollectCountersAndAuditDropped(t *testing.T) {
	c := NewCollectorFromSource(fakeSource{
		snapshot: albumauth.MetricsSnapshot{
			Counters: map[albumauth.MetricID]uint64{
				albumauth.MetricRefreshReuseDetected: 3,
				albumauth.MetricFamilyCompromised:    2,
			},
			Histograms: map[albumauth.MetricID][]uint64{},
		},
		dropped:   4,
		delivered: 9,
	})

	expected := `
# HELP albumauth_audit_delivered_total Audit events handed to the sink.
# TYPE albumauth_audit_delivered_total counter
albumauth_audit_delivered_total 9
# HELP albumauth_audit_dropped_total Dropped audit events due to dispatcher backpressure.
# TYPE albumauth_audit_dropped_total counter
albumauth_audit_dropped_total 4
# HELP albumauth_family_compromised_total Families revoked as compromised.
# TYPE albumauth_family_compromised_total counter
albumauth_family_compromised_total 2
# HELP albumauth_refresh_reuse_detected_total Presentations of an already-rotated refresh id.
# TYPE albumauth_refresh_reuse_detected_total counter
albumauth_refresh_reuse_detected_total 3
`
	err := testutil.CollectAndCompare(c, strings.NewReader(expected),
		"albumauth_refresh_reuse_detected_total",
		"albumauth_family_compromised_total",
		"albumauth_audit_dropped_total",
		"albumauth_audit_delivered_total",
	)
	if err != nil {
		t.Fatal(err)
	}
}

func TestCollectHistogramIsCumulative(t *testing.T) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(NewCollectorFromSource(fakeSource{
		snapshot: albumauth.MetricsSnapshot{
			Counters: map[albumauth.MetricID]uint64{albumauth.MetricRefreshSuccess: 1},
			Histograms: map[albumauth.MetricID][]uint64{
				albumauth.MetricRotateLatency: {1, 2, 3, 4, 5, 6, 7, 8},
			},
		},
	}))

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	var found bool
	for _, mf := range families {
		if mf.GetName() != "albumauth_rotate_latency_seconds" {
			continue
		}
		found = true
		h := mf.GetMetric()[0].GetHistogram()
		if h.GetSampleCount() != 36 {
			t.Fatalf("sample count = %d, want 36", h.GetSampleCount())
		}
		b := h.GetBucket()
		if len(b) != 7 || b[0].GetCumulativeCount() != 1 || b[6].GetCumulativeCount() != 28 {
			t.Fatalf("unexpected buckets: %v", b)
		}
	}
	if !found {
		t.Fatal("rotate latency histogram not exported")
	}
}

func TestHandlerServesRegistry(t *testing.T) {
	c := NewCollectorFromSource(fakeSource{
		snapshot: albumauth.MetricsSnapshot{
			Counters:   map[albumauth.MetricID]uint64{albumauth.MetricSessionIssued: 1},
			Histograms: map[albumauth.MetricID][]uint64{},
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "albumauth_session_issued_total 1") {
		t.Fatalf("missing counter in body:\n%s", rec.Body.String())
	}
}

func BenchmarkCollect(b *testing.B) {
	c := NewCollectorFromSource(fakeSource{
		snapshot: albumauth.MetricsSnapshot{
			Counters: map[albumauth.MetricID]uint64{
				albumauth.MetricSessionIssued:        1000,
				albumauth.MetricRefreshSuccess:       800,
				albumauth.MetricRefreshReuseDetected: 3,
			},
			Histograms: map[albumauth.MetricID][]uint64{
				albumauth.MetricRotateLatency: {10, 20, 30, 40, 50, 60, 70, 80},
			},
		},
	})

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = testutil.CollectAndCount(c)
	}
}
