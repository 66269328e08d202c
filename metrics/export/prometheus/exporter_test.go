package prometheus

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	auth "github.com/realchillguyclub/backend-sub000"
	"github.com/realchillguyclub/backend-sub000/metrics/export/internaldefs"
)

type fakeSource struct {
	snapshot auth.MetricsSnapshot
	dropped  uint64
}

func (f fakeSource) MetricsSnapshot() auth.MetricsSnapshot { return f.snapshot }
func (f fakeSource) AuditDropped() uint64                  { return f.dropped }

func TestCollectEmptyWhenMetricsDisabled(t *testing.T) {
	c := NewCollectorFromSource(fakeSource{
		snapshot: auth.MetricsSnapshot{
			Counters:   map[auth.MetricID]uint64{},
			Histograms: map[auth.MetricID][]uint64{},
		},
	})

	if n := testutil.CollectAndCount(c); n != 0 {
		t.Fatalf("expected no series for disabled metrics, got %d", n)
	}
}

func TestCollectCountersAndHistogram(t *testing.T) {
	c := NewCollectorFromSource(fakeSource{
		snapshot: auth.MetricsSnapshot{
			Counters: map[auth.MetricID]uint64{
				auth.MetricReissueSuccess: 7,
				auth.MetricReuseDetected:  2,
			},
			Histograms: map[auth.MetricID][]uint64{
				auth.MetricValidateLatency: {1, 2, 3, 4, 5, 6, 7, 8},
			},
		},
		dropped: 2,
	})

	want := `
# HELP authd_reissue_success_total Successful refresh token rotations.
# TYPE authd_reissue_success_total counter
authd_reissue_success_total 7
# HELP authd_audit_dropped_total Dropped audit events due to dispatcher backpressure.
# TYPE authd_audit_dropped_total counter
authd_audit_dropped_total 2
# HELP authd_validate_latency_seconds Access token validation latency.
# TYPE authd_validate_latency_seconds histogram
authd_validate_latency_seconds_bucket{le="0.005"} 1
authd_validate_latency_seconds_bucket{le="0.01"} 3
authd_validate_latency_seconds_bucket{le="0.025"} 6
authd_validate_latency_seconds_bucket{le="0.05"} 10
authd_validate_latency_seconds_bucket{le="0.1"} 15
authd_validate_latency_seconds_bucket{le="0.25"} 21
authd_validate_latency_seconds_bucket{le="0.5"} 28
authd_validate_latency_seconds_bucket{le="+Inf"} 36
authd_validate_latency_seconds_sum 0
authd_validate_latency_seconds_count 36
`
	err := testutil.CollectAndCompare(c, strings.NewReader(want),
		"authd_reissue_success_total",
		"authd_audit_dropped_total",
		"authd_validate_latency_seconds",
	)
	if err != nil {
		t.Fatalf("unexpected metrics: %v", err)
	}

	// Every counter plus the histogram and the dropped counter.
	if n := testutil.CollectAndCount(c); n != len(internaldefs.CounterDefs)+2 {
		t.Fatalf("unexpected series count %d", n)
	}
}

func TestCollectorLintsClean(t *testing.T) {
	c := NewCollectorFromSource(fakeSource{
		snapshot: auth.MetricsSnapshot{Counters: map[auth.MetricID]uint64{auth.MetricSessionIssued: 1}},
	})
	problems, err := testutil.CollectAndLint(c)
	if err != nil {
		t.Fatalf("lint: %v", err)
	}
	if len(problems) != 0 {
		t.Fatalf("lint problems: %+v", problems)
	}
}

func TestHandlerServesTextFormat(t *testing.T) {
	c := NewCollectorFromSource(fakeSource{
		snapshot: auth.MetricsSnapshot{
			Counters:   map[auth.MetricID]uint64{auth.MetricSessionIssued: 1},
			Histograms: map[auth.MetricID][]uint64{},
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "authd_session_issued_total 1") {
		t.Fatalf("expected session counter in output, got:\n%s", rec.Body.String())
	}
}
