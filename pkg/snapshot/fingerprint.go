package snapshot

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// ErrEmptyName is returned when a naming rule yields an empty literal.
var ErrEmptyName = errors.New("snapshot: naming rule returned an empty name")

// Fingerprint derives the snapshot name for req. body is the buffered
// request body (see BufferBody). With a nil rule the default derivation is
// used; changing its inputs invalidates every recorded snapshot.
func Fingerprint(ctx context.Context, req *http.Request, body []byte, rule NameFunc) (string, error) {
	if rule == nil {
		return hashJSON(defaultTuple(req, body))
	}

	key, err := rule(ctx, WithBody(req, body))
	if err != nil {
		return "", fmt.Errorf("snapshot: naming rule: %w", err)
	}

	switch key.kind {
	case keyLiteral:
		if key.literal == "" {
			return "", ErrEmptyName
		}
		return key.literal, nil
	case keyStructured:
		return hashJSON(key.value)
	default:
		return "", errors.New("snapshot: naming rule returned a zero Key")
	}
}

// defaultTuple is [method, origin, query entries, header pairs, cookies, body].
func defaultTuple(req *http.Request, body []byte) []any {
	return []any{
		req.Method,
		Origin(req.URL),
		QueryEntries(req.URL),
		HeadersFrom(req.Header),
		CookiesFrom(req),
		Text(body),
	}
}

// hashJSON returns the hex MD5 of v's canonical JSON. Map keys are sorted by
// encoding/json, which is what makes the encoding canonical.
func hashJSON(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", fmt.Errorf("snapshot: encode fingerprint input: %w", err)
	}

	sum := md5.Sum(bytes.TrimRight(buf.Bytes(), "\n"))
	return hex.EncodeToString(sum[:]), nil
}

// Origin renders scheme://host[:port] lower-cased with default ports dropped.
func Origin(u *url.URL) string {
	if u == nil {
		return ""
	}
	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	port := u.Port()
	if port == "" || (scheme == "http" && port == "80") || (scheme == "https" && port == "443") {
		return scheme + "://" + host
	}
	return scheme + "://" + host + ":" + port
}

// QueryEntries returns the query parameters as ordered [name, value] pairs,
// decoded with form semantics. Order and duplicates follow the raw query.
func QueryEntries(u *url.URL) [][2]string {
	entries := [][2]string{}
	if u == nil || u.RawQuery == "" {
		return entries
	}
	for _, part := range strings.Split(u.RawQuery, "&") {
		if part == "" {
			continue
		}
		name, value, _ := strings.Cut(part, "=")
		entries = append(entries, [2]string{unescapeQuery(name), unescapeQuery(value)})
	}
	return entries
}

func unescapeQuery(s string) string {
	if v, err := url.QueryUnescape(s); err == nil {
		return v
	}
	return strings.ReplaceAll(s, "+", " ")
}

// CookiesFrom maps cookie names to values from the Cookie header. A later
// duplicate name wins.
func CookiesFrom(req *http.Request) map[string]string {
	out := map[string]string{}
	for _, c := range req.Cookies() {
		out[c.Name] = c.Value
	}
	return out
}
