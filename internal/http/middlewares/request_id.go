package middlewares

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/authgate/authgate/internal/observability/logger"
)

// WithRequestID propagates the client's X-Request-ID or mints one, echoes
// it on the response, and injects a request-scoped logger into the context
// so every log line downstream carries it.
func WithRequestID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rid := strings.TrimSpace(r.Header.Get("X-Request-ID"))
			if rid == "" {
				rid = uuid.NewString()
			}
			w.Header().Set("X-Request-ID", rid)

			log := logger.From(r.Context()).With(logger.RequestID(rid))
			ctx := logger.ToContext(r.Context(), log)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
