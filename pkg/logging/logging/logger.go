package logging

import (
	"context"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type ctxKey int

const loggerKey ctxKey = iota

var (
	defaultMu     sync.Mutex
	defaultLogger *zap.Logger
)

// Options controls logger construction.
type Options struct {
	// Level is a zap level name ("debug", "info", ...). Empty means info;
	// an unknown name is an error.
	Level string
	// Development switches to the colored console encoder.
	Development bool
}

// OptionsFromEnv reads ENV (dev|development) and LOG_LEVEL.
func OptionsFromEnv() Options {
	env := os.Getenv("ENV")
	return Options{
		Level:       os.Getenv("LOG_LEVEL"),
		Development: env == "dev" || env == "development",
	}
}

// NewLogger builds a zap logger: JSON production config by default,
// console config in development.
func NewLogger(opts Options) (*zap.Logger, error) {
	var config zap.Config
	if opts.Development {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		config = zap.NewProductionConfig()
		config.DisableCaller = false
	}

	if opts.Level != "" {
		level, err := zapcore.ParseLevel(opts.Level)
		if err != nil {
			return nil, err
		}
		config.Level = zap.NewAtomicLevelAt(level)
	}

	return config.Build()
}

// DefaultLogger returns the process logger, built from the environment on
// first use unless SetDefault installed one.
func DefaultLogger() *zap.Logger {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	if defaultLogger == nil {
		logger, err := NewLogger(OptionsFromEnv())
		if err != nil {
			_, _ = os.Stderr.WriteString("failed to create logger: " + err.Error() + "\n")
			logger = zap.NewExample()
		}
		defaultLogger = logger
	}
	return defaultLogger
}

// SetDefault replaces the process logger.
func SetDefault(logger *zap.Logger) {
	defaultMu.Lock()
	defaultLogger = logger
	defaultMu.Unlock()
}

// attach a logger to context
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, loggerKey, logger)
}

func FromContext(ctx context.Context) *zap.Logger {
	if ctx == nil {
		return DefaultLogger()
	}
	if logger, ok := ctx.Value(loggerKey).(*zap.Logger); ok && logger != nil {
		return logger
	}
	return DefaultLogger()
}

func L(ctx context.Context) *zap.Logger {
	return FromContext(ctx)
}

// WithFields adds structured fields to the logger in context.
func WithFields(ctx context.Context, fields ...zap.Field) context.Context {
	logger := FromContext(ctx).With(fields...)
	return WithLogger(ctx, logger)
}
