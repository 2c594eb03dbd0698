package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCountersAreIndependentPerServer(t *testing.T) {
	a, b := New(), New()
	a.Requests.WithLabelValues("command", "live").Inc()
	a.Requests.WithLabelValues("command", "live").Inc()
	b.ProtocolErrors.Inc()

	if got := testutil.ToFloat64(a.Requests.WithLabelValues("command", "live")); got != 2 {
		t.Errorf("a requests = %v", got)
	}
	if got := testutil.ToFloat64(b.Requests.WithLabelValues("command", "live")); got != 0 {
		t.Errorf("b requests = %v", got)
	}
	if got := testutil.ToFloat64(a.ProtocolErrors); got != 0 {
		t.Errorf("a protocol errors = %v", got)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.FileEdits.Add(3)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "replaymock_file_edits_total 3") {
		t.Errorf("metrics output missing counter:\n%s", body)
	}
}
