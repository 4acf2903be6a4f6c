package middleware

import (
	"log/slog"
	"net/http"

	"github.com/utafrali/InboxGo/pkg/logger"
)

// RequestLogger stores a logger enriched with the request's correlation id,
// session key and trace ids in the context (logger.FromContext). Mount it
// after RequestLogging, SessionKey and Tracing.
func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			ctx = logger.NewContext(ctx, logger.WithContext(ctx, base))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
