package snapshot

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// Header is a single [name, value] pair. It serializes as a two element
// JSON array.
type Header [2]string

func (h Header) Name() string  { return h[0] }
func (h Header) Value() string { return h[1] }

// UnmarshalJSON rejects entries that are not exactly two strings.
func (h *Header) UnmarshalJSON(data []byte) error {
	var pair []string
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("snapshot: header entry: %w", err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("snapshot: header entry has %d elements, want 2", len(pair))
	}
	h[0], h[1] = pair[0], pair[1]
	return nil
}

// Headers is an ordered list of header pairs. Duplicate names are kept.
type Headers []Header

// HeadersFrom flattens an http.Header into pairs: names lower-cased and
// sorted, each value its own pair in arrival order.
func HeadersFrom(h http.Header) Headers {
	names := make([]string, 0, len(h))
	for name := range h {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		return strings.ToLower(names[i]) < strings.ToLower(names[j])
	})

	out := make(Headers, 0, len(h))
	for _, name := range names {
		lower := strings.ToLower(name)
		for _, v := range h[name] {
			out = append(out, Header{lower, v})
		}
	}
	return out
}

// Request is the recorded side of the outbound call.
type Request struct {
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Body    string            `json:"body"`
	Headers Headers           `json:"headers"`
	Cookies map[string]string `json:"cookies"`
}

// Response is the recorded answer from the real server.
type Response struct {
	Status     int     `json:"status"`
	StatusText string  `json:"statusText"`
	Headers    Headers `json:"headers"`
	Body       string  `json:"body"`
}

// Snapshot is one persisted request/response pair.
type Snapshot struct {
	Request  Request  `json:"request"`
	Response Response `json:"response"`
}

// Marshal encodes s as the on-disk record: two-space indent, no HTML
// escaping, no trailing newline.
func Marshal(s *Snapshot) ([]byte, error) {
	if s == nil {
		return nil, errors.New("snapshot: nil snapshot")
	}

	rec := *s
	if rec.Request.Headers == nil {
		rec.Request.Headers = Headers{}
	}
	if rec.Request.Cookies == nil {
		rec.Request.Cookies = map[string]string{}
	}
	if rec.Response.Headers == nil {
		rec.Response.Headers = Headers{}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rec); err != nil {
		return nil, fmt.Errorf("snapshot: encode: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Unmarshal decodes and validates a record. Any failure means the bytes are
// not a usable snapshot.
func Unmarshal(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("snapshot: decode: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if s.Request.Cookies == nil {
		s.Request.Cookies = map[string]string{}
	}
	return &s, nil
}

// Validate checks the fields replay depends on.
func (s *Snapshot) Validate() error {
	if s.Request.Method == "" {
		return errors.New("snapshot: request.method is empty")
	}
	if s.Response.Status < 100 || s.Response.Status > 999 {
		return fmt.Errorf("snapshot: response.status %d out of range", s.Response.Status)
	}
	return nil
}
