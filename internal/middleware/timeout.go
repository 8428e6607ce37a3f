package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"snapgate/pkg/logging/logging"
)

// Timeout puts a deadline of d on the request context. If the handler
// returns after the deadline without writing a response, a 504 is sent.
func Timeout(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()

			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				logging.L(ctx).Warn("request timeout", zap.Duration("timeout", d))
				if ww.Status() == 0 {
					writeJSONError(ww, http.StatusGatewayTimeout, "gateway_timeout")
				}
			}
		})
	}
}
