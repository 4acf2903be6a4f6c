package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/utafrali/InboxGo/pkg/health"
	"github.com/utafrali/InboxGo/pkg/middleware"
)

// ServiceName labels metrics and spans.
const ServiceName = "inbox"

// RouterConfig carries the handlers' collaborators and HTTP policy.
type RouterConfig struct {
	Auth        AuthService
	Mail        MailReader
	Consent     ConsentProvider
	Credentials CredentialManager
	Health      *health.Handler
	Logger      *slog.Logger

	CORS           middleware.CORSConfig
	HSTS           bool
	TrustForwarded bool
	SecureCookies  bool
	PprofCIDRs     []string
}

// NewRouter creates a chi router with every service route registered.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	logger := cfg.Logger

	// Global middleware
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.Tracing(ServiceName))
	r.Use(middleware.SessionKey(cfg.TrustForwarded))
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.PrometheusMetrics(ServiceName))
	r.Use(middleware.SecurityHeaders(cfg.HSTS))
	r.Use(middleware.CORS(cfg.CORS))

	// Health check endpoints
	r.Get("/health/live", cfg.Health.LivenessHandler())
	r.Get("/health/ready", cfg.Health.ReadinessHandler())
	r.Get("/healthz", cfg.Health.LivenessHandler())
	r.Get("/readyz", cfg.Health.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())
	if len(cfg.PprofCIDRs) > 0 {
		middleware.RegisterPprof(r, cfg.PprofCIDRs, logger)
	}

	requireUser := middleware.Auth(bearerAuthenticator(cfg.Auth), writeAuthError)

	authHandler := NewAuthHandler(cfg.Auth, logger)
	userHandler := NewUserHandler()
	emailHandler := NewEmailHandler(cfg.Mail, logger)
	oauthHandler := NewOAuthHandler(cfg.Consent, cfg.Credentials, cfg.SecureCookies, logger)

	r.With(RequireContentType("application/x-www-form-urlencoded")).Post("/token", authHandler.Token)
	r.Get("/oauth/callback", oauthHandler.Callback)

	r.Route("/api/v1", func(r chi.Router) {
		// Public auth endpoints
		r.Group(func(r chi.Router) {
			r.Use(ContentTypeJSON)
			r.Post("/auth/register", authHandler.Register)
			r.Post("/auth/login", authHandler.Login)
		})

		r.Group(func(r chi.Router) {
			r.Use(requireUser)

			r.Post("/auth/logout", authHandler.Logout)
			r.Get("/users/me", userHandler.Me)

			r.Get("/emails", emailHandler.List)
			r.Get("/emails/{id}", emailHandler.Get)
			r.Get("/emails/{id}/attachments/{attachmentId}", emailHandler.Download)
			r.Get("/emails/{id}/attachments/{attachmentId}/base64", emailHandler.DownloadBase64)

			r.Get("/oauth/consent", oauthHandler.Consent)
			r.Get("/oauth/status", oauthHandler.Status)
		})
	})

	return r
}
