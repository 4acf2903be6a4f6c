package http

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/utafrali/InboxGo/internal/domain"
	apperrors "github.com/utafrali/InboxGo/pkg/errors"
	"github.com/utafrali/InboxGo/pkg/httputil"
)

// StateCookie holds the consent state nonce between redirect and callback.
const StateCookie = "oauth_state"

const stateCookieMaxAge = 600

// ConsentProvider drives the provider's authorization code flow.
type ConsentProvider interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*domain.DelegatedCredential, error)
}

// CredentialManager persists and reports the delegated credential.
type CredentialManager interface {
	Store(ctx context.Context, cred *domain.DelegatedCredential) error
	Status(ctx context.Context) (domain.CredentialStatus, error)
}

// OAuthHandler runs the consent flow.
type OAuthHandler struct {
	provider     ConsentProvider
	credentials  CredentialManager
	secureCookie bool
	logger       *slog.Logger
}

// NewOAuthHandler creates a consent handler. secureCookie marks the state
// cookie Secure.
func NewOAuthHandler(p ConsentProvider, c CredentialManager, secureCookie bool, logger *slog.Logger) *OAuthHandler {
	return &OAuthHandler{provider: p, credentials: c, secureCookie: secureCookie, logger: logger}
}

// Consent handles GET /api/v1/oauth/consent
func (h *OAuthHandler) Consent(w http.ResponseWriter, r *http.Request) {
	state := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     StateCookie,
		Value:    state,
		Path:     "/oauth/callback",
		MaxAge:   stateCookieMaxAge,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, h.provider.AuthCodeURL(state), http.StatusFound)
}

// Callback handles GET /oauth/callback
func (h *OAuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	cookie, err := r.Cookie(StateCookie)
	// The nonce is single use whatever the outcome.
	http.SetCookie(w, &http.Cookie{Name: StateCookie, Path: "/oauth/callback", MaxAge: -1, HttpOnly: true, Secure: h.secureCookie})

	if err != nil || cookie.Value == "" || subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(q.Get("state"))) != 1 {
		httputil.WriteError(w, r, apperrors.New("INVALID_STATE", "consent state mismatch", http.StatusBadRequest, apperrors.ErrInvalidInput), h.logger)
		return
	}
	if reason := q.Get("error"); reason != "" {
		h.logger.WarnContext(r.Context(), "consent denied", slog.String("reason", reason))
		httputil.WriteError(w, r, apperrors.New("CONSENT_DENIED", "consent was not granted: "+reason, http.StatusBadRequest, apperrors.ErrInvalidInput), h.logger)
		return
	}
	code := q.Get("code")
	if code == "" {
		httputil.WriteError(w, r, apperrors.InvalidInput("authorization code is required"), h.logger)
		return
	}

	cred, err := h.provider.Exchange(r.Context(), code)
	if err != nil {
		httputil.WriteError(w, r, apperrors.New("EXCHANGE_FAILED", "authorization code exchange failed", http.StatusBadGateway, err), h.logger)
		return
	}
	if err := h.credentials.Store(r.Context(), cred); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	h.writeStatus(w, r)
}

// Status handles GET /api/v1/oauth/status
func (h *OAuthHandler) Status(w http.ResponseWriter, r *http.Request) {
	h.writeStatus(w, r)
}

func (h *OAuthHandler) writeStatus(w http.ResponseWriter, r *http.Request) {
	st, err := h.credentials.Status(r.Context())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, st)
}
