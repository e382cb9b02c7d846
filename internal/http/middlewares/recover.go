package middlewares

import (
	"net/http"
	"runtime/debug"

	httperrors "github.com/authgate/authgate/internal/http/errors"
	"github.com/authgate/authgate/internal/observability/logger"
)

// WithRecover converts handler panics into a 500 instead of killing the
// connection, logging the stack for diagnosis.
func WithRecover() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.From(r.Context()).Error("panic in handler",
						logger.Path(r.URL.Path),
						logger.String("panic", toString(rec)),
						logger.String("stack", string(debug.Stack())),
					)
					httperrors.WriteError(w, httperrors.ErrInternal)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func toString(v any) string {
	if err, ok := v.(error); ok {
		return err.Error()
	}
	if s, ok := v.(string); ok {
		return s
	}
	return "unknown panic"
}
