package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsRecordDecision(t *testing.T) {
	m := NewMetrics("test")
	m.RecordDecision("admin_only", OutcomeReject, "INSUFFICIENT_ROLE")
	m.RecordDecision("admin_only", OutcomeReject, "INSUFFICIENT_ROLE")
	m.RecordDecision("authenticate", OutcomeAdmit, "")

	if got := testutil.ToFloat64(m.authDecisions.WithLabelValues("admin_only", OutcomeReject, "INSUFFICIENT_ROLE")); got != 2 {
		t.Fatalf("expected 2 rejects, got %v", got)
	}
	if got := testutil.ToFloat64(m.authDecisions.WithLabelValues("authenticate", OutcomeAdmit, "")); got != 1 {
		t.Fatalf("expected 1 admit, got %v", got)
	}
}

func TestMetricsRecordRequest(t *testing.T) {
	m := NewMetrics("test")
	m.RecordRequest("/api/auth/login", "POST", 200, 12*time.Millisecond)

	if got := testutil.ToFloat64(m.requestsTotal.WithLabelValues("POST", "/api/auth/login", "200")); got != 1 {
		t.Fatalf("expected 1 request, got %v", got)
	}
	if n := testutil.CollectAndCount(m.requestDuration); n != 1 {
		t.Fatalf("expected 1 histogram series, got %d", n)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.RecordRequest("/", "GET", 200, time.Millisecond)
	m.RecordError("/", "GET", "X")
	m.RecordDecision("p", OutcomeAdmit, "")
	m.RecordLogin("success")
	if m.Registry() != nil {
		t.Fatal("expected nil registry")
	}
}
