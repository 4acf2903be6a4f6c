package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/utafrali/InboxGo/internal/domain"
	"github.com/utafrali/InboxGo/internal/service"
	"github.com/utafrali/InboxGo/pkg/httputil"
	"github.com/utafrali/InboxGo/pkg/middleware"
	"github.com/utafrali/InboxGo/pkg/validator"
)

// AuthService is the login and registration facade.
type AuthService interface {
	Login(ctx context.Context, in service.LoginInput) (*service.LoginResult, error)
	Register(ctx context.Context, in service.RegisterInput) (*domain.User, error)
	ResolveCurrentUser(ctx context.Context, token string) (*domain.User, error)
}

// AuthHandler handles HTTP requests for auth endpoints.
type AuthHandler struct {
	service AuthService
	logger  *slog.Logger
}

// NewAuthHandler creates a new auth HTTP handler.
func NewAuthHandler(svc AuthService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{service: svc, logger: logger}
}

// --- Request DTOs ---

// RegisterRequest is the JSON request body for user registration. Password
// strength is checked by the service so its rules are reported verbatim.
type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Name     string `json:"name" validate:"required,max=200"`
	Password string `json:"password" validate:"required"`
}

// LoginRequest is the JSON request body for user login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// --- Response types ---

// TokenResponse is the OAuth2-style token body.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// LoginResponse is the body of a successful JSON login.
type LoginResponse struct {
	TokenResponse
	ExpiresAt time.Time    `json:"expires_at"`
	User      *domain.User `json:"user"`
}

// --- Handlers ---

// Register handles POST /api/v1/auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := validator.DecodeAndValidate(w, r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	user, err := h.service.Register(r.Context(), service.RegisterInput{
		Email:    req.Email,
		Name:     req.Name,
		Password: req.Password,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusCreated, user)
}

// Login handles POST /api/v1/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := validator.DecodeAndValidate(w, r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	res, err := h.login(r, req.Email, req.Password)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, LoginResponse{
		TokenResponse: TokenResponse{AccessToken: res.AccessToken, TokenType: res.TokenType},
		ExpiresAt:     res.ExpiresAt,
		User:          res.User,
	})
}

// Token handles POST /token, the OAuth2 password grant form used by
// interactive API clients.
func (h *AuthHandler) Token(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, validator.MaxBodyBytes)
	if err := r.ParseForm(); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}
	username, password := r.PostForm.Get("username"), r.PostForm.Get("password")
	if username == "" || password == "" {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_INPUT", Message: "username and password are required"},
		})
		return
	}

	res, err := h.login(r, username, password)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	httputil.WriteJSON(w, http.StatusOK, TokenResponse{AccessToken: res.AccessToken, TokenType: res.TokenType})
}

// Logout handles POST /api/v1/auth/logout. Tokens are stateless, so the
// client discarding its token is the whole operation.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if u, ok := UserFromContext(r.Context()); ok {
		h.logger.InfoContext(r.Context(), "user logged out", slog.String("user_id", u.ID))
	}
	httputil.WriteData(w, http.StatusOK, map[string]string{"message": "logged out"})
}

func (h *AuthHandler) login(r *http.Request, email, password string) (*service.LoginResult, error) {
	return h.service.Login(r.Context(), service.LoginInput{
		Email:      email,
		Password:   password,
		SessionKey: middleware.SessionKeyFromContext(r.Context()),
	})
}
