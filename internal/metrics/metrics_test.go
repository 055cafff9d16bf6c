package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.AddFetched(3)
	m.RecordAnalysis("parsed", 200*time.Millisecond)
	m.RecordAnalysis("fallback", time.Second)
	m.RecordAnalysis("fallback", time.Second)
	m.RecordDispatch("reply", ResultSuccess)
	m.RecordDecision("rejected")

	if got := testutil.ToFloat64(m.MessagesFetched); got != 3 {
		t.Errorf("expected 3 fetched, got %v", got)
	}
	if got := testutil.ToFloat64(m.Analysis.WithLabelValues("fallback")); got != 2 {
		t.Errorf("expected 2 fallbacks, got %v", got)
	}
	if got := testutil.ToFloat64(m.Dispatch.WithLabelValues("reply", ResultSuccess)); got != 1 {
		t.Errorf("expected 1 reply dispatch, got %v", got)
	}
	if got := testutil.ToFloat64(m.GateDecisions.WithLabelValues("rejected")); got != 1 {
		t.Errorf("expected 1 rejection, got %v", got)
	}
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.AddFetched(1)
	m.RecordAnalysis("parsed", time.Second)
	m.RecordDispatch("event", ResultFailed)
	m.RecordDecision("approved")
}

func TestHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.AddFetched(1)

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if !strings.Contains(rec.Body.String(), "triage_messages_fetched_total 1") {
		t.Errorf("expected fetched counter in output, got:\n%s", rec.Body.String())
	}
}
