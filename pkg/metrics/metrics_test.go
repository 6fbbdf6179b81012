package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveDecision("redirected", "")
	m.ObserveDecision("ignored", "throttled")
	m.ObserveDecision("ignored", "throttled")
	m.ObserveRedirect("com.android.chrome", false)
	m.ObserveRedirect("com.android.chrome", true)
	m.ObserveConfigUpdate("applied")
	m.SetDetectionEntries(7)

	if got := testutil.ToFloat64(m.EventsTotal.WithLabelValues("ignored", "throttled")); got != 2 {
		t.Errorf("throttled events = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.RedirectsTotal.WithLabelValues("com.android.chrome", "true")); got != 1 {
		t.Errorf("fallback redirects = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ConfigUpdates.WithLabelValues("applied")); got != 1 {
		t.Errorf("config updates = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.DetectionEntries); got != 7 {
		t.Errorf("detection entries = %v, want 7", got)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	if len(families) != 4 {
		t.Errorf("gathered %d families, want 4", len(families))
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveDecision("ignored", "no_match")
	m.ObserveRedirect("app", false)
	m.ObserveConfigUpdate("failed")
	m.SetDetectionEntries(1)
}
