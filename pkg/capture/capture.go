package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"snapgate/pkg/snapshot"
)

// TransportError means the live request failed. Nothing is persisted.
type TransportError struct {
	Method string
	URL    string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("capture: %s %s: %v", e.Method, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Capture performs the live request exactly once and records the exchange.
// body is the buffered request body; the transport gets its own reader
// over it. The Content-Encoding header is removed from the stored response
// and the body is stored decoded.
func Capture(ctx context.Context, req *http.Request, body []byte, transport http.RoundTripper) (*snapshot.Snapshot, error) {
	if req == nil {
		return nil, errors.New("capture: request is nil")
	}
	if transport == nil {
		transport = http.DefaultTransport
	}

	out := snapshot.WithBody(req.WithContext(ctx), body)
	out.RequestURI = ""

	resp, err := transport.RoundTrip(out)
	if err != nil {
		return nil, &TransportError{Method: req.Method, URL: req.URL.String(), Err: err}
	}
	defer resp.Body.Close()

	header := resp.Header.Clone()
	if header == nil {
		header = http.Header{}
	}
	encoding := header.Get("Content-Encoding")
	header.Del("Content-Encoding")

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Method: req.Method, URL: req.URL.String(), Err: fmt.Errorf("read response body: %w", err)}
	}

	decodedBody, decoded, err := decodeBody(raw, encoding)
	if err != nil {
		return nil, err
	}
	if decoded {
		// The wire length no longer describes the stored body.
		header.Del("Content-Length")
	}

	return &snapshot.Snapshot{
		Request: snapshot.Request{
			Method:  req.Method,
			URL:     req.URL.String(),
			Body:    snapshot.Text(body),
			Headers: snapshot.HeadersFrom(req.Header),
			Cookies: snapshot.CookiesFrom(req),
		},
		Response: snapshot.Response{
			Status:     resp.StatusCode,
			StatusText: StatusText(resp),
			Headers:    snapshot.HeadersFrom(header),
			Body:       snapshot.Text(decodedBody),
		},
	}, nil
}

// StatusText extracts the reason phrase from resp.Status ("200 OK" -> "OK"),
// falling back to the standard text for the code.
func StatusText(resp *http.Response) string {
	if text, ok := strings.CutPrefix(resp.Status, strconv.Itoa(resp.StatusCode)); ok {
		if text = strings.TrimSpace(text); text != "" {
			return text
		}
	}
	return http.StatusText(resp.StatusCode)
}
