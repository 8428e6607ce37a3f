package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPathLabel(t *testing.T) {
	tests := map[string]string{
		"":                "/",
		"/":               "/",
		"/healthz":        "/healthz",
		"/v1/users/42":    "/v1",
		"/api/":           "/api",
		"/a/b/c/d/e/f/gh": "/a",
	}
	for in, want := range tests {
		if got := pathLabel(in); got != want {
			t.Errorf("pathLabel(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMiddlewareRecordsStatus(t *testing.T) {
	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	before := testutil.CollectAndCount(GatewayLatencySeconds)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/teapot/brew", nil))

	if rr.Code != http.StatusTeapot {
		t.Fatalf("expected 418, got %d", rr.Code)
	}
	if after := testutil.CollectAndCount(GatewayLatencySeconds); after <= before {
		t.Fatalf("expected a new histogram series, before=%d after=%d", before, after)
	}
}
