package upstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// retryTransport retries transient failures of the next transport.
//   - Retries only on transient network errors, 408, 429 and 5xx.
//   - Respects Retry-After.
//   - Exponential backoff with full jitter.
//   - Requests with a body are retried only when GetBody is set.
type retryTransport struct {
	next        http.RoundTripper
	maxRetries  int
	baseBackoff time.Duration
	logger      *zap.Logger
}

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	maxAttempts := t.maxRetries + 1
	if !replayable(req) {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		out, err := attemptRequest(req, attempt)
		if err != nil {
			return nil, err
		}

		start := time.Now()
		resp, err := t.next.RoundTrip(out)

		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		t.logger.Debug("upstream request",
			zap.String("url", req.URL.String()),
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", maxAttempts),
			zap.Int("status", status),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err),
		)

		last := attempt == maxAttempts-1
		var wait time.Duration

		switch {
		case err != nil:
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			if !isTransientNetError(err) || last {
				return nil, err
			}
			lastErr = err
		case !shouldRetryStatus(status) || last:
			// The final answer is returned as-is, retryable status or not.
			return resp, nil
		default:
			lastErr = fmt.Errorf("upstream status %d", status)
			wait = parseRetryAfter(resp)
			// Drain so the connection can be reused.
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}

		if wait <= 0 {
			wait = computeBackoff(t.baseBackoff, attempt)
		}
		t.logger.Debug("backing off before retry",
			zap.Duration("backoff", wait),
			zap.Int("next_attempt", attempt+2),
		)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}

	if lastErr == nil {
		lastErr = errors.New("unknown upstream error")
	}
	return nil, fmt.Errorf("upstream: max retries (%d) exceeded: %w", maxAttempts, lastErr)
}

func replayable(req *http.Request) bool {
	return req.Body == nil || req.Body == http.NoBody || req.GetBody != nil
}

// attemptRequest returns the request for the given attempt. Later attempts
// get a fresh body from GetBody.
func attemptRequest(req *http.Request, attempt int) (*http.Request, error) {
	if attempt == 0 || req.GetBody == nil {
		return req, nil
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, fmt.Errorf("upstream: rewind request body: %w", err)
	}
	out := req.Clone(req.Context())
	out.Body = body
	return out, nil
}

var transientPatterns = []string{
	"connection refused",
	"connection reset",
	"broken pipe",
	"temporary failure",
}

// isTransientNetError reports timeouts, dial/read/write failures and
// temporary DNS errors.
func isTransientNetError(err error) bool {
	if err == nil {
		return false
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.IsTimeout || dnsErr.IsTemporary
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) && slices.Contains([]string{"dial", "read", "write"}, opErr.Op) {
		return true
	}

	// Wrapped errors sometimes only keep the message.
	msg := strings.ToLower(err.Error())
	return slices.ContainsFunc(transientPatterns, func(p string) bool {
		return strings.Contains(msg, p)
	})
}

func shouldRetryStatus(status int) bool {
	switch {
	case status == http.StatusTooManyRequests, status == http.StatusRequestTimeout:
		return true
	case status >= 500 && status <= 599:
		return true
	default:
		return false
	}
}

// parseRetryAfter reads Retry-After as seconds or an HTTP date, capped at
// five minutes. Returns 0 if missing or invalid.
func parseRetryAfter(resp *http.Response) time.Duration {
	if resp == nil {
		return 0
	}

	retryAfter := strings.TrimSpace(resp.Header.Get("Retry-After"))
	if retryAfter == "" {
		return 0
	}

	const maxRetryAfter = 5 * time.Minute

	if seconds, err := strconv.Atoi(retryAfter); err == nil {
		if seconds <= 0 {
			return 0
		}
		return min(time.Duration(seconds)*time.Second, maxRetryAfter)
	}

	if t, err := http.ParseTime(retryAfter); err == nil {
		if d := time.Until(t); d > 0 {
			return min(d, maxRetryAfter)
		}
	}

	return 0
}

// computeBackoff returns a random duration in [0, base<<attempt), with the
// exponent capped at 10 and the ceiling at 60s.
func computeBackoff(base time.Duration, attempt int) time.Duration {
	const maxBackoff = 60 * time.Second

	if base <= 0 {
		base = 100 * time.Millisecond
	}
	ceiling := min(base<<min(attempt, 10), maxBackoff)

	return time.Duration(rand.Int64N(int64(ceiling) + 1))
}
