package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"snapgate/internal/metrics"
	"snapgate/pkg/capture"
	"snapgate/pkg/interceptor"
	"snapgate/pkg/logging/logging"
	"snapgate/pkg/replay"
)

const (
	HeaderSource      = "X-Snapgate-Source"
	HeaderFingerprint = "X-Snapgate-Fingerprint"
)

// hopHeaders apply to a single connection and are never forwarded.
var hopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// SnapshotHandler serves every request through the record/replay
// interceptor. Absolute-form targets (forward proxy) are used as-is;
// origin-form targets are resolved against BaseURL.
type SnapshotHandler struct {
	Interceptor *interceptor.Interceptor
	Passthrough http.RoundTripper
	BaseURL     *url.URL
}

// NewSnapshotHandler wires the handler. baseURL may be empty, in which case
// only absolute-form requests are accepted.
func NewSnapshotHandler(ic *interceptor.Interceptor, passthrough http.RoundTripper, baseURL string) (*SnapshotHandler, error) {
	h := &SnapshotHandler{Interceptor: ic, Passthrough: passthrough}
	if h.Passthrough == nil {
		h.Passthrough = http.DefaultTransport
	}

	if baseURL != "" {
		u, err := url.Parse(strings.TrimRight(baseURL, "/"))
		if err != nil {
			return nil, fmt.Errorf("handlers: parse base url: %w", err)
		}
		if u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("handlers: base url %q must be absolute", baseURL)
		}
		h.BaseURL = u
	}
	return h, nil
}

func (h *SnapshotHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.L(ctx)

	target, ok := h.targetURL(r)
	if !ok {
		logger.Warn("no upstream for origin-form request", zap.String("path", r.URL.Path))
		writeError(w, http.StatusBadRequest, "no_upstream", "request target is not absolute and no upstream base url is configured")
		return
	}

	out, err := outboundRequest(ctx, r, target)
	if err != nil {
		logger.Warn("invalid request", zap.Error(err))
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	res, err := h.Interceptor.Intercept(out)
	switch {
	case errors.Is(err, interceptor.ErrDeclined):
		h.proxy(w, out)
		return
	case err != nil:
		h.writeInterceptError(w, r, err)
		return
	}

	if res.Outcome == interceptor.OutcomeHit {
		w.Header().Set(HeaderSource, "cache")
	} else {
		w.Header().Set(HeaderSource, "server")
	}
	w.Header().Set(HeaderFingerprint, res.Fingerprint)

	if err := replay.Write(w, res.Snapshot); err != nil {
		logger.Warn("replay_write_error", zap.Error(err))
	}
}

// proxy forwards a declined request live without recording it.
func (h *SnapshotHandler) proxy(w http.ResponseWriter, out *http.Request) {
	logger := logging.L(out.Context())

	resp, err := h.Passthrough.RoundTrip(out)
	if err != nil {
		h.writeInterceptError(w, out, &capture.TransportError{Method: out.Method, URL: out.URL.String(), Err: err})
		return
	}
	defer resp.Body.Close()

	removeHopHeaders(resp.Header)
	for name, values := range resp.Header {
		for _, v := range values {
			w.Header().Add(name, v)
		}
	}
	w.Header().Set(HeaderSource, "passthrough")
	w.WriteHeader(resp.StatusCode)

	if _, err := io.Copy(w, resp.Body); err != nil {
		logger.Warn("passthrough_copy_error", zap.Error(err))
	}
}

func (h *SnapshotHandler) writeInterceptError(w http.ResponseWriter, r *http.Request, err error) {
	logger := logging.L(r.Context())

	var (
		maxErr *http.MaxBytesError
		tErr   *capture.TransportError
		encErr *capture.UnsupportedEncodingError
	)

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		// Timeout middleware answers.
		logger.Warn("upstream deadline exceeded", zap.Error(err))
	case errors.As(err, &maxErr):
		writeError(w, http.StatusRequestEntityTooLarge, "body_too_large", fmt.Sprintf("request body exceeds %d bytes", maxErr.Limit))
	case errors.As(err, &tErr):
		logger.Warn("upstream_error", zap.Error(err))
		writeError(w, http.StatusBadGateway, "upstream_error", err.Error())
	case errors.As(err, &encErr):
		writeError(w, http.StatusBadGateway, "unsupported_encoding", err.Error())
	default:
		logger.Error("intercept_error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func (h *SnapshotHandler) targetURL(r *http.Request) (*url.URL, bool) {
	if r.URL.IsAbs() {
		u := *r.URL
		return &u, true
	}
	if h.BaseURL == nil {
		return nil, false
	}

	u := *h.BaseURL
	u.Path = joinPath(h.BaseURL.Path, r.URL.Path)
	u.RawPath = joinPath(h.BaseURL.EscapedPath(), r.URL.EscapedPath())
	u.RawQuery = r.URL.RawQuery
	u.Fragment = ""
	return &u, true
}

func joinPath(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	}
	return strings.TrimRight(a, "/") + "/" + strings.TrimLeft(b, "/")
}

// outboundRequest builds the client request for target from the inbound
// server request. The inbound body is handed over, not copied.
func outboundRequest(ctx context.Context, in *http.Request, target *url.URL) (*http.Request, error) {
	out, err := http.NewRequestWithContext(ctx, in.Method, target.String(), in.Body)
	if err != nil {
		return nil, err
	}

	out.Header = in.Header.Clone()
	if out.Header == nil {
		out.Header = http.Header{}
	}
	removeHopHeaders(out.Header)
	out.ContentLength = in.ContentLength
	if in.Body == nil || in.Body == http.NoBody || in.ContentLength == 0 {
		out.Body = http.NoBody
		out.ContentLength = 0
	}
	return out, nil
}

// removeHopHeaders deletes hop-by-hop headers, including any named in
// Connection.
func removeHopHeaders(h http.Header) {
	for _, f := range h.Values("Connection") {
		for _, name := range strings.Split(f, ",") {
			if name = textproto.TrimString(name); name != "" {
				h.Del(name)
			}
		}
	}
	for _, name := range hopHeaders {
		h.Del(name)
	}
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	metrics.GatewayErrorsTotal.WithLabelValues(code).Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{Error: code, Message: msg})
}
