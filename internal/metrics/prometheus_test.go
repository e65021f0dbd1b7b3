package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordDecisionIncrements(t *testing.T) {
	before := testutil.ToFloat64(entitlementDecisions.WithLabelValues("pattern_decoder", "free", "denied"))
	RecordDecision("pattern_decoder", "free", "denied")
	after := testutil.ToFloat64(entitlementDecisions.WithLabelValues("pattern_decoder", "free", "denied"))

	if after-before != 1 {
		t.Fatalf("expected counter to grow by 1, grew by %v", after-before)
	}
}

func TestHandlerExposesCollectors(t *testing.T) {
	ObserveHTTP(http.MethodGet, "/healthz", http.StatusOK, 10*time.Millisecond)
	RecordBillingEvent("customer.subscription.deleted", "applied")

	srv := httptest.NewServer(Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	for _, name := range []string{"soulart_http_requests_total", "soulart_billing_events_total"} {
		if !strings.Contains(string(body), name) {
			t.Fatalf("expected %s in metrics output", name)
		}
	}
}
