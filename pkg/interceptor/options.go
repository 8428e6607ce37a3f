package interceptor

import (
	"net/http"

	"go.uber.org/zap"

	"snapgate/pkg/store"
)

// Option customizes an Interceptor.
type Option func(*Interceptor)

// WithStore replaces the default file store rooted at Config.SnapshotDir.
func WithStore(s store.Store) Option {
	return func(i *Interceptor) {
		if s != nil {
			i.store = s
		}
	}
}

// WithTransport sets the live transport used on a cache miss.
func WithTransport(rt http.RoundTripper) Option {
	return func(i *Interceptor) {
		if rt != nil {
			i.transport = rt
		}
	}
}

// WithPassthrough sets the transport for requests the Test filter declines.
// Defaults to the live transport.
func WithPassthrough(rt http.RoundTripper) Option {
	return func(i *Interceptor) {
		i.passthrough = rt
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(i *Interceptor) {
		i.logger = logger
	}
}
