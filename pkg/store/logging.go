package store

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"time"

	"snapgate/internal/metrics"
	"snapgate/pkg/logging/logging"
	"snapgate/pkg/snapshot"

	"go.uber.org/zap"
)

// LoggingStore wraps a Store with logging + metrics.
type LoggingStore struct {
	inner  Store
	logger *zap.Logger
}

// NewLoggingStore returns a store that logs and records metrics. A nil
// logger means the request-scoped logger from context.
func NewLoggingStore(inner Store, logger *zap.Logger) Store {
	return &LoggingStore{inner: inner, logger: logger}
}

func (c *LoggingStore) Locate(host, path, fingerprint string) string {
	return c.inner.Locate(host, path, fingerprint)
}

func (c *LoggingStore) Read(ctx context.Context, location string) (*snapshot.Snapshot, error) {
	start := time.Now()
	snap, err := c.inner.Read(ctx, location)
	elapsed := time.Since(start)
	metrics.SnapshotStoreLatencySeconds.WithLabelValues("read").Observe(elapsed.Seconds())

	result := lookupResult(err)
	metrics.SnapshotLookupsTotal.WithLabelValues(result).Inc()

	fields := []zap.Field{
		zap.String("location", location),
		zap.String("fingerprint", fingerprintOf(location)),
		zap.String("lookup_result", result), // hit | miss | parse_error | error
		zap.Float64("latency_ms", float64(elapsed.Microseconds())/1000.0),
	}

	logger := c.loggerFor(ctx)
	switch result {
	case "parse_error":
		logger.Warn("snapshot_read", append(fields, zap.Error(err))...)
	case "error":
		logger.Error("snapshot_read", append(fields, zap.Error(err))...)
	default:
		logger.Debug("snapshot_read", fields...)
	}

	return snap, err
}

func (c *LoggingStore) Write(ctx context.Context, location string, snap *snapshot.Snapshot) error {
	start := time.Now()
	err := c.inner.Write(ctx, location, snap)
	elapsed := time.Since(start)
	metrics.SnapshotStoreLatencySeconds.WithLabelValues("write").Observe(elapsed.Seconds())

	fields := []zap.Field{
		zap.String("location", location),
		zap.String("fingerprint", fingerprintOf(location)),
		zap.Float64("latency_ms", float64(elapsed.Microseconds())/1000.0),
	}

	logger := c.loggerFor(ctx)
	if err != nil {
		metrics.SnapshotWritesTotal.WithLabelValues("error").Inc()
		logger.Error("snapshot_write", append(fields, zap.Error(err))...)
	} else {
		metrics.SnapshotWritesTotal.WithLabelValues("ok").Inc()
		logger.Info("snapshot_write", fields...)
	}

	return err
}

func (c *LoggingStore) loggerFor(ctx context.Context) *zap.Logger {
	if c.logger != nil {
		return c.logger
	}
	return logging.L(ctx)
}

func lookupResult(err error) string {
	var parseErr *ParseError
	switch {
	case err == nil:
		return "hit"
	case errors.Is(err, ErrNotFound):
		return "miss"
	case errors.As(err, &parseErr):
		return "parse_error"
	default:
		return "error"
	}
}

// fingerprintOf recovers the escaped fingerprint from a location.
func fingerprintOf(location string) string {
	return strings.TrimSuffix(filepath.Base(location), ".json")
}
