package upstream

import (
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

type Config struct {
	Timeout     time.Duration // response header timeout (default: 30s)
	MaxRetries  int           // retry attempts, 0 disables retries
	BaseBackoff time.Duration // initial backoff (default: 100ms)

	// Optional connection pool settings
	MaxIdleConns        int // default: 100
	MaxIdleConnsPerHost int // default: 100

	// Tracing wraps the transport with otelhttp client spans.
	Tracing bool
}

// WithDefaults returns a copy of Config with defaults applied.
func (c Config) WithDefaults() Config {
	cfg := c

	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = 100 * time.Millisecond
	}
	if cfg.MaxIdleConns <= 0 {
		cfg.MaxIdleConns = 100
	}
	if cfg.MaxIdleConnsPerHost <= 0 {
		cfg.MaxIdleConnsPerHost = 100
	}

	return cfg
}

// New builds the live transport: a pooled http.Transport, wrapped with
// retries when MaxRetries > 0 and with tracing when enabled.
func New(cfg Config, logger *zap.Logger) http.RoundTripper {
	cfg = cfg.WithDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return wrap(defaultTransport(cfg), cfg, logger)
}

func wrap(base http.RoundTripper, cfg Config, logger *zap.Logger) http.RoundTripper {
	rt := base
	if cfg.MaxRetries > 0 {
		rt = &retryTransport{
			next:        rt,
			maxRetries:  cfg.MaxRetries,
			baseBackoff: cfg.BaseBackoff,
			logger:      logger.Named("upstream"),
		}
	}
	if cfg.Tracing {
		rt = otelhttp.NewTransport(rt)
	}
	return rt
}

// defaultTransport is a pooled transport. Compression is only negotiated
// when the client asks for it; capture decodes whatever comes back.
func defaultTransport(cfg Config) *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:   true,
		DisableCompression:  true,
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:     90 * time.Second,

		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: cfg.Timeout,
		ExpectContinueTimeout: 1 * time.Second,
	}
}
