// Package credential manages the lifecycle of the delegated OAuth2
// credential: caching, expiry checks, single-flight refresh and fallback to
// interactive consent.
package credential

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/singleflight"

	"github.com/utafrali/InboxGo/internal/domain"
	apperrors "github.com/utafrali/InboxGo/pkg/errors"
)

const flightKey = "refresh"

// Config tunes refresh behaviour.
type Config struct {
	// SafetyMargin treats a credential as expired this long before ExpiresAt.
	SafetyMargin time.Duration
	// RefreshTimeout bounds one refresh flight including its retry.
	RefreshTimeout time.Duration
	// RetryBackoff is the pause before retrying a transient failure.
	RetryBackoff time.Duration
}

// DefaultConfig returns a 60s margin, 10s timeout and 500ms backoff.
func DefaultConfig() Config {
	return Config{
		SafetyMargin:   60 * time.Second,
		RefreshTimeout: 10 * time.Second,
		RetryBackoff:   500 * time.Millisecond,
	}
}

// Manager hands out a valid delegated credential, refreshing it when needed.
// Safe for concurrent use.
type Manager struct {
	store     Store
	refresher Refresher
	notifier  Notifier
	cfg       Config
	logger    *slog.Logger
	now       func() time.Time

	group singleflight.Group
	// mu serializes refresh flights and Store.
	mu sync.Mutex

	cacheMu sync.RWMutex
	cached  *domain.DelegatedCredential
}

// Option customizes a Manager.
type Option func(*Manager)

// WithNotifier registers a lifecycle listener.
func WithNotifier(n Notifier) Option {
	return func(m *Manager) {
		if n != nil {
			m.notifier = n
		}
	}
}

// WithClock injects the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a Manager. Zero config fields take DefaultConfig values.
func NewManager(store Store, refresher Refresher, cfg Config, logger *slog.Logger, opts ...Option) *Manager {
	def := DefaultConfig()
	if cfg.SafetyMargin <= 0 {
		cfg.SafetyMargin = def.SafetyMargin
	}
	if cfg.RefreshTimeout <= 0 {
		cfg.RefreshTimeout = def.RefreshTimeout
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = def.RetryBackoff
	}
	m := &Manager{
		store:     store,
		refresher: refresher,
		notifier:  nopNotifier{},
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// GetValidCredential returns a credential usable for at least SafetyMargin.
// Concurrent callers needing a refresh share one flight. A caller whose ctx
// ends while waiting gets ctx.Err() and the flight keeps running.
func (m *Manager) GetValidCredential(ctx context.Context) (*domain.DelegatedCredential, error) {
	cred, err := m.load(ctx)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, domain.ConsentRequired()
		}
		return nil, err
	}
	if cred.ValidAt(m.now(), m.cfg.SafetyMargin) {
		return cred.Clone(), nil
	}

	flightCtx := context.WithoutCancel(ctx)
	ch := m.group.DoChan(flightKey, func() (any, error) {
		return m.refreshFlight(flightCtx)
	})

	select {
	case res := <-ch:
		if res.Shared {
			refreshShared.Inc()
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*domain.DelegatedCredential).Clone(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *Manager) refreshFlight(parent context.Context) (*domain.DelegatedCredential, error) {
	ctx, cancel := context.WithTimeout(parent, m.cfg.RefreshTimeout)
	defer cancel()

	ctx, span := otel.Tracer("InboxGo/credential").Start(ctx, "credential.refresh")
	defer span.End()

	start := time.Now()
	defer func() { refreshDuration.Observe(time.Since(start).Seconds()) }()

	m.mu.Lock()
	defer m.mu.Unlock()

	cur, err := m.store.Load(ctx)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			m.setCached(nil)
			refreshTotal.WithLabelValues(outcomeConsentRequired).Inc()
			return nil, domain.ConsentRequired()
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "load credential")
		return nil, fmt.Errorf("load credential: %w", err)
	}
	if cur.ValidAt(m.now(), m.cfg.SafetyMargin) {
		m.setCached(cur)
		span.SetAttributes(attribute.Bool("credential.already_fresh", true))
		return cur, nil
	}

	if cur.RefreshToken == "" {
		return nil, m.requireConsent(ctx, "credential has no refresh token")
	}

	refreshed, err := m.refreshWithRetry(ctx, cur.RefreshToken)
	if err == nil && refreshed == nil {
		err = errors.New("refresher returned no credential")
	}
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, ErrGrantRevoked) {
			span.SetStatus(codes.Error, "grant revoked")
			return nil, m.requireConsent(ctx, "refresh token revoked")
		}
		span.SetStatus(codes.Error, "refresh failed")
		refreshTotal.WithLabelValues(outcomeFailed).Inc()
		m.logger.WarnContext(ctx, "credential refresh failed", slog.String("error", err.Error()))
		return nil, domain.RefreshFailed(err)
	}

	next := merge(cur, refreshed, m.now())
	if err := m.store.Save(ctx, next); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist credential")
		refreshTotal.WithLabelValues(outcomeFailed).Inc()
		return nil, domain.RefreshFailed(fmt.Errorf("persist refreshed credential: %w", err))
	}
	m.setCached(next)
	refreshTotal.WithLabelValues(outcomeSuccess).Inc()
	m.notifier.CredentialRefreshed(ctx, next.Clone())

	m.logger.InfoContext(ctx, "credential refreshed", slog.Time("expires_at", next.ExpiresAt))
	return next, nil
}

func (m *Manager) refreshWithRetry(ctx context.Context, refreshToken string) (*domain.DelegatedCredential, error) {
	cred, err := m.refresher.Refresh(ctx, refreshToken)
	if err == nil || !errors.Is(err, ErrTransient) {
		return cred, err
	}

	m.logger.InfoContext(ctx, "retrying credential refresh",
		slog.Duration("backoff", m.cfg.RetryBackoff),
		slog.String("error", err.Error()),
	)
	timer := time.NewTimer(m.cfg.RetryBackoff)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("refresh timed out: %w", errors.Join(err, ctx.Err()))
	case <-timer.C:
	}

	return m.refresher.Refresh(ctx, refreshToken)
}

// requireConsent discards the stored credential. Caller holds m.mu.
func (m *Manager) requireConsent(ctx context.Context, reason string) error {
	if err := m.store.Delete(ctx); err != nil && !errors.Is(err, ErrNotFound) {
		m.logger.ErrorContext(ctx, "failed to delete stale credential", slog.String("error", err.Error()))
	}
	m.setCached(nil)
	refreshTotal.WithLabelValues(outcomeConsentRequired).Inc()
	m.notifier.ConsentRequired(ctx, reason)
	m.logger.WarnContext(ctx, "mail provider consent required", slog.String("reason", reason))
	return domain.ConsentRequired()
}

// merge keeps the previous refresh token and scopes when the provider
// omitted them.
func merge(prev, got *domain.DelegatedCredential, now time.Time) *domain.DelegatedCredential {
	next := got.Clone()
	if next.RefreshToken == "" {
		next.RefreshToken = prev.RefreshToken
	}
	if len(next.Scopes) == 0 {
		next.Scopes = append([]string(nil), prev.Scopes...)
	}
	if next.TokenType == "" {
		next.TokenType = domain.DefaultTokenType
	}
	next.UpdatedAt = now.UTC()
	return next
}

// Store validates and persists a credential obtained through consent.
func (m *Manager) Store(ctx context.Context, cred *domain.DelegatedCredential) error {
	if cred == nil || cred.AccessToken == "" {
		return apperrors.InvalidInput("credential access token is required")
	}
	now := m.now()
	if cred.ExpiresAt.IsZero() {
		return apperrors.InvalidInput("credential expiry is required")
	}
	if !cred.ExpiresAt.After(now) {
		return apperrors.InvalidInput("credential is already expired")
	}

	next := cred.Clone()
	if next.TokenType == "" {
		next.TokenType = domain.DefaultTokenType
	}
	next.UpdatedAt = now.UTC()

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.store.Save(ctx, next); err != nil {
		return fmt.Errorf("save credential: %w", err)
	}
	m.setCached(next)
	m.logger.InfoContext(ctx, "credential stored", slog.Time("expires_at", next.ExpiresAt))
	return nil
}

// Status reports presence and expiry without exposing tokens.
func (m *Manager) Status(ctx context.Context) (domain.CredentialStatus, error) {
	cred, err := m.load(ctx)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return domain.CredentialStatus{}, nil
		}
		return domain.CredentialStatus{}, err
	}
	expiresAt := cred.ExpiresAt
	st := domain.CredentialStatus{
		Present:         true,
		Expired:         !cred.ValidAt(m.now(), 0),
		ExpiresAt:       &expiresAt,
		Scopes:          append([]string(nil), cred.Scopes...),
		HasRefreshToken: cred.RefreshToken != "",
	}
	if !cred.UpdatedAt.IsZero() {
		updated := cred.UpdatedAt
		st.UpdatedAt = &updated
	}
	return st, nil
}

func (m *Manager) load(ctx context.Context) (*domain.DelegatedCredential, error) {
	m.cacheMu.RLock()
	cached := m.cached
	m.cacheMu.RUnlock()
	if cached != nil {
		return cached, nil
	}

	cred, err := m.store.Load(ctx)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load credential: %w", err)
	}
	m.setCached(cred)
	return cred, nil
}

func (m *Manager) setCached(cred *domain.DelegatedCredential) {
	m.cacheMu.Lock()
	m.cached = cred.Clone()
	m.cacheMu.Unlock()
}
