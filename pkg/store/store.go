package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"snapgate/pkg/snapshot"
)

// ErrNotFound is returned by Read when no snapshot exists at a location.
// It routes to a cache miss and is not a failure.
var ErrNotFound = errors.New("snapshot not found")

// ParseError reports a record that exists but is not a valid snapshot.
type ParseError struct {
	Location string
	Err      error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("store: can't parse snapshot %s: %v", e.Location, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Store is the interface used by the interceptor.
// Implemented by the file store (default), memory store (tests) and Redis
// store (shared CI runs).
type Store interface {
	// Locate maps a snapshot identity to its location. Pure, no I/O.
	Locate(host, path, fingerprint string) string
	Read(ctx context.Context, location string) (*snapshot.Snapshot, error)
	Write(ctx context.Context, location string, s *snapshot.Snapshot) error
}

// Locate builds <baseDir>/<host>/<path segments...>/<fingerprint>.json.
//
// Every segment goes through escapeSegment, so the result never leaves
// baseDir: separators, "." and ".." segments and characters that are
// invalid in Windows or POSIX file names are percent-encoded.
func Locate(baseDir, host, path, fingerprint string) string {
	parts := make([]string, 0, 8)
	parts = append(parts, baseDir, escapeSegment(hostname(host)))

	for _, seg := range strings.Split(path, "/") {
		if seg == "" {
			continue
		}
		parts = append(parts, escapeSegment(seg))
	}

	parts = append(parts, escapeSegment(fingerprint)+".json")
	return filepath.Join(parts...)
}

// hostname lower-cases host and drops any port.
func hostname(host string) string {
	h := strings.ToLower(host)
	if strings.HasPrefix(h, "[") {
		if end := strings.Index(h, "]"); end > 0 {
			return h[1:end]
		}
		return h
	}
	if i := strings.LastIndex(h, ":"); i >= 0 && strings.Count(h, ":") == 1 {
		return h[:i]
	}
	return h
}

const hexDigits = "0123456789ABCDEF"

func escapeSegment(seg string) string {
	switch seg {
	case "":
		return "%00"
	case ".":
		return "%2E"
	case "..":
		return "%2E%2E"
	}

	var b strings.Builder
	for i := 0; i < len(seg); i++ {
		c := seg[i]
		if needsEscape(c) {
			b.WriteByte('%')
			b.WriteByte(hexDigits[c>>4])
			b.WriteByte(hexDigits[c&0x0F])
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

func needsEscape(c byte) bool {
	if c < 0x20 || c == 0x7F {
		return true
	}
	switch c {
	case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
		return true
	}
	return false
}
