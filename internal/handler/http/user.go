package http

import (
	"net/http"

	"github.com/utafrali/InboxGo/internal/domain"
	"github.com/utafrali/InboxGo/pkg/httputil"
)

// UserHandler serves the authenticated user's profile.
type UserHandler struct{}

// NewUserHandler creates a new user HTTP handler.
func NewUserHandler() *UserHandler {
	return &UserHandler{}
}

// Me handles GET /api/v1/users/me
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		httputil.WriteError(w, r, domain.Unauthenticated(), nil)
		return
	}
	httputil.WriteData(w, http.StatusOK, user)
}
