package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/utafrali/InboxGo/pkg/logger"
)

type sessionKeyType struct{}

// SessionKey derives the key that login throttling is tracked under from
// the client IP. Client-chosen identifiers are never used, so rotating them
// cannot reset the lockout. When trustForwarded is set the first
// X-Forwarded-For hop is used as client IP.
func SessionKey(trustForwarded bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := ClientIP(r, trustForwarded)
			ctx := context.WithValue(r.Context(), sessionKeyType{}, key)
			ctx = logger.WithSessionKey(ctx, key)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SessionKeyFromContext returns the key stored by the SessionKey middleware.
func SessionKeyFromContext(ctx context.Context) string {
	if k, ok := ctx.Value(sessionKeyType{}).(string); ok {
		return k
	}
	return ""
}

// ClientIP returns the caller's IP without port.
func ClientIP(r *http.Request, trustForwarded bool) string {
	if trustForwarded {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
