package replay

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"snapgate/pkg/snapshot"
)

// Response rebuilds an *http.Response from a stored snapshot. Each call
// returns a fresh response with its own body reader.
func Response(snap *snapshot.Snapshot, req *http.Request) *http.Response {
	body := []byte(snap.Response.Body)

	header := make(http.Header, len(snap.Response.Headers))
	appendHeaders(header, snap.Response.Headers)
	header.Set("Content-Length", strconv.Itoa(len(body)))

	return &http.Response{
		Status:        statusLine(snap),
		StatusCode:    snap.Response.Status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
		Request:       req,
	}
}

// Write replays snap onto w. Stored headers are appended to whatever is
// already set on w.Header(); content-length is left to net/http.
func Write(w http.ResponseWriter, snap *snapshot.Snapshot) error {
	appendHeaders(w.Header(), snap.Response.Headers)
	w.Header().Del("Content-Encoding")

	w.WriteHeader(snap.Response.Status)
	if _, err := io.WriteString(w, snap.Response.Body); err != nil {
		return fmt.Errorf("replay: write body: %w", err)
	}
	return nil
}

func appendHeaders(dst http.Header, pairs snapshot.Headers) {
	for _, h := range pairs {
		switch http.CanonicalHeaderKey(h.Name()) {
		case "Content-Encoding", "Content-Length":
			continue
		}
		dst.Add(h.Name(), h.Value())
	}
}

func statusLine(snap *snapshot.Snapshot) string {
	text := snap.Response.StatusText
	if text == "" {
		text = http.StatusText(snap.Response.Status)
	}
	if text == "" {
		return strconv.Itoa(snap.Response.Status)
	}
	return fmt.Sprintf("%d %s", snap.Response.Status, text)
}
