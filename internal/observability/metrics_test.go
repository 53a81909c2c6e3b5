package observability

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetrics_IndependentRegistries(t *testing.T) {
	// Two instances in one process must not collide on registration.
	a := NewMetrics("orion_test")
	b := NewMetrics("orion_test")

	a.RecordPoll("found")
	a.RecordPoll("found")
	b.RecordPoll("found")

	if got := testutil.ToFloat64(a.PollsTotal.WithLabelValues("found")); got != 2 {
		t.Errorf("a polls = %v, want 2", got)
	}
	if got := testutil.ToFloat64(b.PollsTotal.WithLabelValues("found")); got != 1 {
		t.Errorf("b polls = %v, want 1", got)
	}
}

func TestRecordHelpers_NilSafe(t *testing.T) {
	var m *Metrics
	m.RecordSubmission("ok")
	m.RecordPoll("found")
	m.RecordAwait("completed", 1)
	m.RecordCallback(true)
	m.RecordDBQuery("postgres", "insert", 0.1, errors.New("x"))
	m.UpdateRequestCounts(map[string]int{"pending": 1})
}

func TestRecordDBQuery_CountsErrors(t *testing.T) {
	m := NewMetrics("")
	m.RecordDBQuery("postgres", "get", 0.01, nil)
	m.RecordDBQuery("postgres", "get", 0.01, errors.New("boom"))

	if got := testutil.ToFloat64(m.DBQueryErrors.WithLabelValues("postgres", "get")); got != 1 {
		t.Errorf("errors = %v, want 1", got)
	}
}

func TestUpdateRequestCounts_ResetsStale(t *testing.T) {
	m := NewMetrics("")
	m.UpdateRequestCounts(map[string]int{"pending": 3, "processing": 1})
	m.UpdateRequestCounts(map[string]int{"completed": 4})

	if got := testutil.CollectAndCount(m.RequestsByStatus); got != 1 {
		t.Errorf("gauge series = %d, want 1", got)
	}
}

func TestHandler_ExposesNamespace(t *testing.T) {
	m := NewMetrics("orion_http")
	m.RecordCallback(true)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if !strings.Contains(rec.Body.String(), `orion_http_service_callbacks_received_total{accepted="true"} 1`) {
		t.Errorf("metric missing from exposition:\n%s", rec.Body.String())
	}
}
