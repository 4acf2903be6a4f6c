// Package oauth drives the mail provider's OAuth2 consent and refresh
// endpoints.
package oauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/utafrali/InboxGo/internal/credential"
	"github.com/utafrali/InboxGo/internal/domain"
	"github.com/utafrali/InboxGo/pkg/httpclient"
)

// GmailReadOnlyScope is the scope requested by default.
const GmailReadOnlyScope = "https://www.googleapis.com/auth/gmail.readonly"

// Config identifies the OAuth client. AuthURL and TokenURL default to
// Google's endpoints.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
	AuthURL      string
	TokenURL     string
}

// Provider implements credential.Refresher and the consent exchange.
type Provider struct {
	cfg    *oauth2.Config
	client *http.Client
	now    func() time.Time
}

// NewProvider creates a Provider. client carries all token endpoint calls;
// nil uses http.DefaultClient.
func NewProvider(cfg Config, client *http.Client) *Provider {
	endpoint := google.Endpoint
	if cfg.AuthURL != "" {
		endpoint.AuthURL = cfg.AuthURL
	}
	if cfg.TokenURL != "" {
		endpoint.TokenURL = cfg.TokenURL
	}
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{GmailReadOnlyScope}
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Provider{
		cfg: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       scopes,
			Endpoint:     endpoint,
		},
		client: client,
		now:    time.Now,
	}
}

// NewTokenEndpointClient returns the breaker client for token endpoint
// calls. It never retries: authorization codes and rotated refresh tokens
// are single use, and credential.Manager owns the one refresh retry.
func NewTokenEndpointClient(cfg httpclient.Config, logger *slog.Logger) *httpclient.CircuitBreakerClient {
	cfg.MaxRetries = 0
	return httpclient.NewCircuitBreakerClient(httpclient.New(cfg),
		httpclient.DefaultCircuitBreakerConfig("oauth-token"), logger)
}

// NewBreakerProvider routes token calls through a circuit breaker.
func NewBreakerProvider(cfg Config, breaker *httpclient.CircuitBreakerClient) *Provider {
	return NewProvider(cfg, breaker.HTTPClient())
}

// AuthCodeURL builds the consent redirect. Offline access with a forced
// prompt makes the provider issue a refresh token every time.
func (p *Provider) AuthCodeURL(state string) string {
	return p.cfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Exchange trades an authorization code for a credential.
func (p *Provider) Exchange(ctx context.Context, code string) (*domain.DelegatedCredential, error) {
	tok, err := p.cfg.Exchange(p.clientContext(ctx), code)
	if err != nil {
		return nil, fmt.Errorf("exchange authorization code: %w", classify(ctx, err))
	}
	return p.toCredential(tok), nil
}

// Refresh obtains a new access token. invalid_grant maps to
// credential.ErrGrantRevoked, network failures and 5xx to
// credential.ErrTransient.
func (p *Provider) Refresh(ctx context.Context, refreshToken string) (*domain.DelegatedCredential, error) {
	src := p.cfg.TokenSource(p.clientContext(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, fmt.Errorf("refresh access token: %w", classify(ctx, err))
	}
	cred := p.toCredential(tok)
	if tok.RefreshToken == refreshToken {
		// oauth2 copies the old token forward when none is returned.
		cred.RefreshToken = ""
	}
	return cred, nil
}

func (p *Provider) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, p.client)
}

func (p *Provider) toCredential(tok *oauth2.Token) *domain.DelegatedCredential {
	cred := &domain.DelegatedCredential{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.Type(),
		ExpiresAt:    tok.Expiry.UTC(),
		UpdatedAt:    p.now().UTC(),
	}
	if scope, ok := tok.Extra("scope").(string); ok && scope != "" {
		cred.Scopes = strings.Fields(scope)
	}
	return cred
}

func classify(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return errors.Join(err, ctxErr)
	}

	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		switch {
		case re.ErrorCode == "invalid_grant":
			return fmt.Errorf("%w: %s", credential.ErrGrantRevoked, describe(re))
		case re.Response != nil && re.Response.StatusCode >= http.StatusInternalServerError:
			return fmt.Errorf("%w: %s", credential.ErrTransient, describe(re))
		default:
			return fmt.Errorf("token endpoint rejected request: %s", describe(re))
		}
	}

	// Transport failures, breaker rejections and *httpclient.ServerError.
	return fmt.Errorf("%w: %v", credential.ErrTransient, err)
}

func describe(re *oauth2.RetrieveError) string {
	status := 0
	if re.Response != nil {
		status = re.Response.StatusCode
	}
	if re.ErrorCode != "" {
		return fmt.Sprintf("%d %s %s", status, re.ErrorCode, re.ErrorDescription)
	}
	return fmt.Sprintf("%d %s", status, strings.TrimSpace(string(re.Body)))
}
