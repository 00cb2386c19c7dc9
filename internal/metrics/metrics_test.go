package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordOracleCall(t *testing.T) {
	before := testutil.ToFloat64(OracleCallsTotal.WithLabelValues("select", "timeout"))

	RecordOracleCall("select", "timeout", 2*time.Second)
	RecordOracleCall("select", "timeout", time.Second)

	after := testutil.ToFloat64(OracleCallsTotal.WithLabelValues("select", "timeout"))
	if after-before != 2 {
		t.Errorf("oracle_calls_total grew by %v, want 2", after-before)
	}
}

func TestRecordPapers(t *testing.T) {
	before := testutil.ToFloat64(PapersTotal.WithLabelValues("fetched"))
	RecordPapers("fetched", 17)
	after := testutil.ToFloat64(PapersTotal.WithLabelValues("fetched"))

	if after-before != 17 {
		t.Errorf("papers_total grew by %v, want 17", after-before)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	RecordRun("succeeded")

	r := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	Handler().ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("got status %d, want %d", w.Code, http.StatusOK)
	}
	if !strings.Contains(w.Body.String(), "paperfeed_runs_total") {
		t.Error("metrics output missing paperfeed_runs_total")
	}
}
