package httpserver

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap/zaptest"
)

func TestSetupRouter(t *testing.T) {
	var seen []string
	snapshots := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.Method+" "+r.URL.Path)
		_, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusAccepted)
	})

	r := chi.NewRouter()
	SetupRouter(r, zaptest.NewLogger(t), snapshots, Options{MaxBodyBytes: 1024})

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusOK || rr.Body.String() != "ok" {
		t.Fatalf("healthz: %d %q", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("metrics: %d", rr.Code)
	}

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/users/42"},
		{http.MethodPost, "/v1/chat"},
		{http.MethodDelete, "/"},
	} {
		rr = httptest.NewRecorder()
		r.ServeHTTP(rr, httptest.NewRequest(tc.method, tc.path, strings.NewReader("")))
		if rr.Code != http.StatusAccepted {
			t.Fatalf("%s %s: status %d", tc.method, tc.path, rr.Code)
		}
	}

	if len(seen) != 3 || seen[0] != "GET /users/42" || seen[2] != "DELETE /" {
		t.Fatalf("catch-all did not see requests: %v", seen)
	}
}
