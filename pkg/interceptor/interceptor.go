package interceptor

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"runtime/debug"
	"time"

	"go.uber.org/zap"

	"snapgate/internal/metrics"
	"snapgate/pkg/capture"
	"snapgate/pkg/logging/logging"
	"snapgate/pkg/replay"
	"snapgate/pkg/snapshot"
	"snapgate/pkg/store"
)

var (
	// ErrMissingSnapshotDir is a startup error: Config.SnapshotDir is required.
	ErrMissingSnapshotDir = errors.New("interceptor: snapshot dir is required")

	// ErrDeclined means the Test filter did not match. The request was not
	// touched and belongs to another handler.
	ErrDeclined = errors.New("interceptor: request declined")
)

// Hook observes a request and the snapshot served for it.
type Hook func(req *http.Request, snap *snapshot.Snapshot)

type Config struct {
	// Test restricts interception to matching URLs. Nil matches everything.
	Test *regexp.Regexp

	SnapshotDir string

	// UpdateSnapshot forces a live call and overwrite even on a hit.
	UpdateSnapshot bool

	// CreateSnapshotName overrides the default fingerprint.
	CreateSnapshotName snapshot.NameFunc

	// OnFetchFromCache runs before a stored snapshot is replayed.
	OnFetchFromCache Hook

	// OnFetchFromServer runs after a live capture, before it is written.
	OnFetchFromServer Hook

	// OnParseError reports a stored record that could not be parsed. The
	// request continues as a miss.
	OnParseError func(location string, err error)
}

type Outcome string

const (
	OutcomeHit     Outcome = "hit"
	OutcomeMiss    Outcome = "miss"
	OutcomeRefresh Outcome = "refresh"
)

// Result describes how a request was answered.
type Result struct {
	Outcome     Outcome
	Fingerprint string
	Location    string
	Snapshot    *snapshot.Snapshot

	// WriteErr is set when a captured snapshot could not be persisted. The
	// snapshot is still served.
	WriteErr error
}

// Interceptor decides between replaying a stored snapshot and capturing a
// live response. It implements http.RoundTripper.
type Interceptor struct {
	cfg         Config
	store       store.Store
	transport   http.RoundTripper
	passthrough http.RoundTripper
	logger      *zap.Logger
}

var _ http.RoundTripper = (*Interceptor)(nil)

func New(cfg Config, opts ...Option) (*Interceptor, error) {
	if cfg.SnapshotDir == "" {
		return nil, ErrMissingSnapshotDir
	}

	i := &Interceptor{
		cfg:       cfg,
		transport: http.DefaultTransport,
	}
	for _, opt := range opts {
		opt(i)
	}

	if i.store == nil {
		i.store = store.NewLoggingStore(store.NewFileStore(cfg.SnapshotDir, nil), i.logger)
	}
	if i.passthrough == nil {
		i.passthrough = i.transport
	}
	return i, nil
}

// Matches reports whether req passes the Test filter.
func (i *Interceptor) Matches(req *http.Request) bool {
	if i.cfg.Test == nil {
		return true
	}
	return i.cfg.Test.MatchString(req.URL.String())
}

// RoundTrip answers req from a snapshot, capturing one first if needed.
// Declined requests go to the passthrough transport unchanged.
func (i *Interceptor) RoundTrip(req *http.Request) (*http.Response, error) {
	res, err := i.Intercept(req)
	if errors.Is(err, ErrDeclined) {
		return i.passthrough.RoundTrip(req)
	}
	if err != nil {
		return nil, err
	}
	return replay.Response(res.Snapshot, req), nil
}

// Intercept runs the decision protocol for req and returns the snapshot to
// serve. The caller's request body is consumed; req itself is not modified.
func (i *Interceptor) Intercept(req *http.Request) (*Result, error) {
	if req == nil || req.URL == nil {
		return nil, errors.New("interceptor: request has no URL")
	}
	if !i.Matches(req) {
		return nil, ErrDeclined
	}

	start := time.Now()
	ctx := req.Context()
	logger := i.loggerFor(req)

	req = req.Clone(ctx)
	body, err := snapshot.BufferBody(req)
	if err != nil {
		return nil, fmt.Errorf("interceptor: %w", err)
	}

	fp, err := snapshot.Fingerprint(ctx, req, body, i.cfg.CreateSnapshotName)
	if err != nil {
		return nil, fmt.Errorf("interceptor: fingerprint: %w", err)
	}
	location := i.store.Locate(req.URL.Host, req.URL.EscapedPath(), fp)

	res := &Result{Fingerprint: fp, Location: location}

	if i.cfg.UpdateSnapshot {
		res.Outcome = OutcomeRefresh
	} else if snap, ok := i.lookup(req, location, logger); ok {
		res.Outcome = OutcomeHit
		res.Snapshot = snap
		i.runHook("on_fetch_from_cache", i.cfg.OnFetchFromCache, snapshot.WithBody(req, body), snap, logger)
		i.logDecision(logger, res, start)
		return res, nil
	} else {
		res.Outcome = OutcomeMiss
	}

	snap, err := capture.Capture(ctx, req, body, i.transport)
	if err != nil {
		metrics.SnapshotCapturesTotal.WithLabelValues(captureResult(err)).Inc()
		logger.Error("snapshot_capture_failed",
			zap.String("fingerprint", fp),
			zap.String("url", req.URL.String()),
			zap.Error(err),
		)
		return nil, err
	}
	metrics.SnapshotCapturesTotal.WithLabelValues("ok").Inc()

	i.runHook("on_fetch_from_server", i.cfg.OnFetchFromServer, snapshot.WithBody(req, body), snap, logger)

	if err := i.store.Write(ctx, location, snap); err != nil {
		// The live response is still good; only the recording is lost.
		res.WriteErr = err
		logger.Error("snapshot_persist_failed",
			zap.String("location", location),
			zap.Error(err),
		)
	}

	res.Snapshot = snap
	i.logDecision(logger, res, start)
	return res, nil
}

// lookup reads location. Anything other than a clean read is a miss;
// parse errors are reported on the way.
func (i *Interceptor) lookup(req *http.Request, location string, logger *zap.Logger) (*snapshot.Snapshot, bool) {
	snap, err := i.store.Read(req.Context(), location)
	if err == nil {
		return snap, true
	}

	var parseErr *store.ParseError
	switch {
	case errors.Is(err, store.ErrNotFound):
	case errors.As(err, &parseErr):
		logger.Warn("snapshot_unreadable", zap.String("location", location), zap.Error(err))
		if i.cfg.OnParseError != nil {
			i.cfg.OnParseError(location, err)
		}
	default:
		logger.Error("snapshot_lookup_failed", zap.String("location", location), zap.Error(err))
	}
	return nil, false
}

func captureResult(err error) string {
	var tErr *capture.TransportError
	if errors.As(err, &tErr) {
		return "transport_error"
	}
	return "error"
}

// runHook calls hook and swallows any panic it raises.
func (i *Interceptor) runHook(name string, hook Hook, req *http.Request, snap *snapshot.Snapshot, logger *zap.Logger) {
	if hook == nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("hook panic recovered",
				zap.String("hook", name),
				zap.Any("error", rec),
				zap.ByteString("stack", debug.Stack()),
			)
		}
	}()
	hook(req, snap)
}

func (i *Interceptor) logDecision(logger *zap.Logger, res *Result, start time.Time) {
	logger.Info("snapshot_decision",
		zap.String("fingerprint", res.Fingerprint),
		zap.String("location", res.Location),
		zap.String("outcome", string(res.Outcome)),
		zap.Int("status", res.Snapshot.Response.Status),
		zap.Bool("persisted", res.Outcome == OutcomeHit || res.WriteErr == nil),
		zap.Float64("latency_ms", float64(time.Since(start).Microseconds())/1000.0),
	)
}

func (i *Interceptor) loggerFor(req *http.Request) *zap.Logger {
	if i.logger != nil {
		return i.logger.Named("interceptor")
	}
	return logging.L(req.Context())
}
