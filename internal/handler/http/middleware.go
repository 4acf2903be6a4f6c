package http

import (
	"context"
	"errors"
	"mime"
	"net/http"

	"github.com/utafrali/InboxGo/internal/domain"
	"github.com/utafrali/InboxGo/pkg/httputil"
	"github.com/utafrali/InboxGo/pkg/logger"
	"github.com/utafrali/InboxGo/pkg/middleware"
)

// RequireContentType rejects requests with a body whose media type is not
// one of types.
func RequireContentType(types ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(types))
	for _, t := range types {
		allowed[t] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > 0 || r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch {
				mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
				if _, ok := allowed[mt]; !ok {
					httputil.WriteJSON(w, http.StatusUnsupportedMediaType, httputil.Response{
						Error: &httputil.ErrorResponse{Code: "UNSUPPORTED_MEDIA_TYPE", Message: "unsupported Content-Type"},
					})
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ContentTypeJSON requires application/json bodies.
var ContentTypeJSON = RequireContentType("application/json")

type userKey struct{}

// WithUser stores the authenticated user on ctx.
func WithUser(ctx context.Context, u *domain.User) context.Context {
	ctx = context.WithValue(ctx, userKey{}, u)
	return logger.WithUserID(ctx, u.ID)
}

// UserFromContext returns the user stored by WithUser.
func UserFromContext(ctx context.Context) (*domain.User, bool) {
	u, ok := ctx.Value(userKey{}).(*domain.User)
	return u, ok && u != nil
}

// bearerAuthenticator adapts ResolveCurrentUser to middleware.Authenticator.
func bearerAuthenticator(auth AuthService) func(ctx context.Context, token string) (context.Context, error) {
	return func(ctx context.Context, token string) (context.Context, error) {
		u, err := auth.ResolveCurrentUser(ctx, token)
		if err != nil {
			return ctx, err
		}
		return WithUser(ctx, u), nil
	}
}

func writeAuthError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, middleware.ErrMissingBearer) {
		err = domain.Unauthenticated()
	}
	httputil.WriteError(w, r, err, nil)
}
