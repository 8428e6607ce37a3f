package capture

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func gzipBytes(t *testing.T, s string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write([]byte(s)); err != nil {
		t.Fatalf("gzip write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	return buf.Bytes()
}

func TestCaptureAgainstServer(t *testing.T) {
	var (
		mu      sync.Mutex
		calls   int
		gotBody string
	)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		calls++
		gotBody = string(b)
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.Header().Add("Set-Cookie", "a=1")
		w.Header().Add("Set-Cookie", "b=2")
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"id":1}`)
	}))
	defer srv.Close()

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/users?x=1", strings.NewReader(`{"name":"bob"}`))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.AddCookie(&http.Cookie{Name: "sid", Value: "42"})

	snap, err := Capture(context.Background(), req, []byte(`{"name":"bob"}`), srv.Client().Transport)
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Fatalf("expected exactly one live call, got %d", calls)
	}
	if gotBody != `{"name":"bob"}` {
		t.Fatalf("server received body %q", gotBody)
	}

	if snap.Request.Method != http.MethodPost || snap.Request.URL != srv.URL+"/users?x=1" {
		t.Fatalf("unexpected request record: %+v", snap.Request)
	}
	if snap.Request.Body != `{"name":"bob"}` {
		t.Fatalf("unexpected request body %q", snap.Request.Body)
	}
	if snap.Request.Cookies["sid"] != "42" {
		t.Fatalf("cookies not recorded: %v", snap.Request.Cookies)
	}

	if snap.Response.Status != http.StatusCreated || snap.Response.StatusText != "Created" {
		t.Fatalf("unexpected status %d %q", snap.Response.Status, snap.Response.StatusText)
	}
	if snap.Response.Body != `{"id":1}` {
		t.Fatalf("unexpected response body %q", snap.Response.Body)
	}

	var cookies []string
	for _, h := range snap.Response.Headers {
		if h.Name() == "set-cookie" {
			cookies = append(cookies, h.Value())
		}
	}
	if len(cookies) != 2 || cookies[0] != "a=1" || cookies[1] != "b=2" {
		t.Fatalf("duplicate headers not preserved: %v", snap.Response.Headers)
	}
}

func TestCaptureStripsContentEncoding(t *testing.T) {
	tests := []struct {
		name     string
		encoding string
		body     func(t *testing.T) []byte
	}{
		{"gzip", "gzip", func(t *testing.T) []byte { return gzipBytes(t, "hello gzip") }},
		{"deflate", "deflate", func(t *testing.T) []byte {
			var buf bytes.Buffer
			zw := zlib.NewWriter(&buf)
			_, _ = zw.Write([]byte("hello gzip"))
			_ = zw.Close()
			return buf.Bytes()
		}},
		{"zstd", "zstd", func(t *testing.T) []byte {
			enc, err := zstd.NewWriter(nil)
			if err != nil {
				t.Fatalf("zstd writer: %v", err)
			}
			defer enc.Close()
			return enc.EncodeAll([]byte("hello gzip"), nil)
		}},
		{"identity", "identity", func(t *testing.T) []byte { return []byte("hello gzip") }},
		{"stacked", "gzip, gzip", func(t *testing.T) []byte { return gzipBytes(t, string(gzipBytes(t, "hello gzip"))) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wire := tt.body(t)
			rt := roundTripFunc(func(r *http.Request) (*http.Response, error) {
				h := http.Header{}
				h.Set("Content-Encoding", tt.encoding)
				h.Set("Content-Length", "9999")
				h.Set("Content-Type", "text/plain")
				return &http.Response{
					StatusCode: http.StatusOK,
					Status:     "200 OK",
					Header:     h,
					Body:       io.NopCloser(bytes.NewReader(wire)),
				}, nil
			})

			req := httptest.NewRequest(http.MethodGet, "https://api.example.com/", nil)
			snap, err := Capture(context.Background(), req, nil, rt)
			if err != nil {
				t.Fatalf("Capture: %v", err)
			}
			if snap.Response.Body != "hello gzip" {
				t.Fatalf("body not decoded: %q", snap.Response.Body)
			}
			for _, h := range snap.Response.Headers {
				if h.Name() == "content-encoding" {
					t.Fatalf("content-encoding persisted: %v", snap.Response.Headers)
				}
				if h.Name() == "content-length" && tt.encoding != "identity" {
					t.Fatalf("stale content-length kept after decoding: %v", snap.Response.Headers)
				}
			}
		})
	}
}

func TestCaptureUnsupportedEncoding(t *testing.T) {
	rt := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		h := http.Header{}
		h.Set("Content-Encoding", "br")
		return &http.Response{StatusCode: 200, Header: h, Body: io.NopCloser(strings.NewReader("xx"))}, nil
	})

	_, err := Capture(context.Background(), httptest.NewRequest(http.MethodGet, "https://x.test/", nil), nil, rt)
	var encErr *UnsupportedEncodingError
	if !errors.As(err, &encErr) || encErr.Encoding != "br" {
		t.Fatalf("expected UnsupportedEncodingError for br, got %v", err)
	}
}

func TestCaptureTransportError(t *testing.T) {
	boom := errors.New("connection refused")
	calls := 0
	rt := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		calls++
		return nil, boom
	})

	_, err := Capture(context.Background(), httptest.NewRequest(http.MethodGet, "https://x.test/a", nil), nil, rt)
	var tErr *TransportError
	if !errors.As(err, &tErr) {
		t.Fatalf("expected *TransportError, got %v", err)
	}
	if !errors.Is(err, boom) {
		t.Fatalf("transport error should wrap the cause")
	}
	if calls != 1 {
		t.Fatalf("expected one transport call, got %d", calls)
	}
}

func TestCaptureForwardsBufferedBody(t *testing.T) {
	var seen []string
	rt := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		b, _ := io.ReadAll(r.Body)
		seen = append(seen, string(b))
		if r.GetBody == nil {
			t.Fatalf("outbound request should be replayable")
		}
		return &http.Response{StatusCode: 204, Header: http.Header{}, Body: http.NoBody}, nil
	})

	req := httptest.NewRequest(http.MethodPut, "https://x.test/a", nil)
	snap, err := Capture(context.Background(), req, []byte("payload"), rt)
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if len(seen) != 1 || seen[0] != "payload" {
		t.Fatalf("unexpected forwarded bodies %v", seen)
	}
	if snap.Response.StatusText != "No Content" {
		t.Fatalf("expected fallback status text, got %q", snap.Response.StatusText)
	}
}

func TestStatusText(t *testing.T) {
	tests := []struct {
		resp *http.Response
		want string
	}{
		{&http.Response{StatusCode: 200, Status: "200 OK"}, "OK"},
		{&http.Response{StatusCode: 200, Status: "200 Everything Fine"}, "Everything Fine"},
		{&http.Response{StatusCode: 404, Status: ""}, "Not Found"},
		{&http.Response{StatusCode: 299, Status: "299"}, ""},
	}
	for _, tt := range tests {
		if got := StatusText(tt.resp); got != tt.want {
			t.Errorf("StatusText(%q) = %q, want %q", tt.resp.Status, got, tt.want)
		}
	}
}
