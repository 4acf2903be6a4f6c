package middleware

import (
	"context"
	"net/http"
	"strings"
)

// Authenticator resolves a bearer token into a request context carrying the
// caller's identity, or fails.
type Authenticator func(ctx context.Context, token string) (context.Context, error)

// AuthErrorWriter renders an authentication failure.
type AuthErrorWriter func(w http.ResponseWriter, r *http.Request, err error)

// ErrMissingBearer is passed to the AuthErrorWriter when the request has no
// usable Authorization header.
var ErrMissingBearer = bearerError("missing or malformed bearer token")

type bearerError string

func (e bearerError) Error() string { return string(e) }

// BearerToken extracts the token from an "Authorization: Bearer <token>"
// header. The scheme is case-insensitive.
func BearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// Auth rejects requests without a valid bearer token and otherwise serves
// next with the context produced by authn.
func Auth(authn Authenticator, onError AuthErrorWriter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := BearerToken(r)
			if !ok {
				w.Header().Set("WWW-Authenticate", "Bearer")
				onError(w, r, ErrMissingBearer)
				return
			}
			ctx, err := authn(r.Context(), token)
			if err != nil {
				w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
				onError(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
