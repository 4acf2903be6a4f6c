// Package service holds the authentication facade used by the transport
// layer.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/utafrali/InboxGo/internal/domain"
	"github.com/utafrali/InboxGo/internal/repository"
	"github.com/utafrali/InboxGo/internal/throttle"
	apperrors "github.com/utafrali/InboxGo/pkg/errors"
	"github.com/utafrali/InboxGo/pkg/logger"
)

// DefaultTokenTTL is the bearer token lifetime when none is configured.
const DefaultTokenTTL = 30 * time.Minute

// PasswordHasher is satisfied by *auth.PasswordHasher.
type PasswordHasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, digest string) bool
	VerifyDummy(plaintext string)
}

// TokenIssuer is satisfied by *auth.TokenIssuer.
type TokenIssuer interface {
	Issue(subject string, ttl time.Duration) (string, time.Time, error)
	Validate(token string) (string, error)
}

// LoginThrottle is satisfied by *throttle.Throttle.
type LoginThrottle interface {
	Check(ctx context.Context, key string) (throttle.Decision, error)
	CheckAndRecord(ctx context.Context, key string, succeeded bool) (throttle.Decision, error)
}

// EventPublisher is satisfied by *event.Producer.
type EventPublisher interface {
	PublishUserRegistered(ctx context.Context, user *domain.User) error
	PublishLoginLocked(ctx context.Context, sessionKey string, retryAfterSeconds int) error
}

// LoginInput holds the parameters for a login attempt.
type LoginInput struct {
	Email      string
	Password   string
	SessionKey string
}

// LoginResult is returned on successful login.
type LoginResult struct {
	AccessToken string
	TokenType   string
	ExpiresAt   time.Time
	User        *domain.User
}

// RegisterInput holds the parameters for registering a new user.
type RegisterInput struct {
	Email    string
	Name     string
	Password string
}

// AuthService composes hashing, tokens, throttling and the user store.
type AuthService struct {
	users    repository.UserRepository
	hasher   PasswordHasher
	tokens   TokenIssuer
	throttle LoginThrottle
	events   EventPublisher
	tokenTTL time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// NewAuthService creates the facade. A zero tokenTTL selects DefaultTokenTTL.
func NewAuthService(
	users repository.UserRepository,
	hasher PasswordHasher,
	tokens TokenIssuer,
	throttle LoginThrottle,
	events EventPublisher,
	tokenTTL time.Duration,
	logger *slog.Logger,
) *AuthService {
	if tokenTTL <= 0 {
		tokenTTL = DefaultTokenTTL
	}
	return &AuthService{
		users:    users,
		hasher:   hasher,
		tokens:   tokens,
		throttle: throttle,
		events:   events,
		tokenTTL: tokenTTL,
		logger:   logger,
		now:      time.Now,
	}
}

// Login authenticates by email and password. Every attempt passes the
// throttle before the outcome is revealed, including attempts for unknown
// emails.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	key := in.SessionKey
	if key == "" {
		key = "unknown"
	}

	gate, err := s.throttle.Check(ctx, key)
	if err != nil {
		loginAttempts.WithLabelValues(loginError).Inc()
		return nil, fmt.Errorf("check login throttle: %w", err)
	}
	if gate.Blocked {
		loginAttempts.WithLabelValues(loginLocked).Inc()
		return nil, domain.Locked(gate.RetryAfterSeconds())
	}

	email := domain.NormalizeEmail(in.Email)
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			s.hasher.VerifyDummy(in.Password)
			return nil, s.fail(ctx, key)
		}
		if _, recErr := s.throttle.CheckAndRecord(ctx, key, false); recErr != nil {
			s.logger.ErrorContext(ctx, "failed to record login attempt", slog.String("error", recErr.Error()))
		}
		loginAttempts.WithLabelValues(loginError).Inc()
		return nil, fmt.Errorf("look up user: %w", err)
	}

	if !user.IsActive {
		// Answered exactly like an unknown email.
		s.hasher.VerifyDummy(in.Password)
		return nil, s.fail(ctx, key)
	}

	if !s.hasher.Verify(in.Password, user.PasswordHash) {
		return nil, s.fail(ctx, key)
	}

	d, err := s.throttle.CheckAndRecord(ctx, key, true)
	if err != nil {
		loginAttempts.WithLabelValues(loginError).Inc()
		return nil, fmt.Errorf("record login attempt: %w", err)
	}
	if d.Blocked {
		loginAttempts.WithLabelValues(loginLocked).Inc()
		return nil, domain.Locked(d.RetryAfterSeconds())
	}

	now := s.now().UTC()
	if err := s.users.TouchLastLogin(ctx, user.ID, now); err != nil {
		s.logger.WarnContext(ctx, "failed to update last login",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	} else {
		user.LastLoginAt = &now
	}

	token, expiresAt, err := s.tokens.Issue(user.Email, s.tokenTTL)
	if err != nil {
		loginAttempts.WithLabelValues(loginError).Inc()
		return nil, fmt.Errorf("issue token: %w", err)
	}

	loginAttempts.WithLabelValues(loginSuccess).Inc()
	s.logger.InfoContext(logger.WithUserID(ctx, user.ID), "user logged in")

	return &LoginResult{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresAt:   expiresAt,
		User:        user,
	}, nil
}

// fail records a failed attempt and picks the error to reveal.
func (s *AuthService) fail(ctx context.Context, key string) error {
	d, err := s.throttle.CheckAndRecord(ctx, key, false)
	if err != nil {
		loginAttempts.WithLabelValues(loginError).Inc()
		return fmt.Errorf("record login attempt: %w", err)
	}
	if d.Blocked {
		loginAttempts.WithLabelValues(loginLocked).Inc()
		s.logger.WarnContext(ctx, "login locked", slog.Int("retry_after_seconds", d.RetryAfterSeconds()))
		if err := s.events.PublishLoginLocked(ctx, key, d.RetryAfterSeconds()); err != nil {
			s.logger.ErrorContext(ctx, "failed to publish auth.login_locked event", slog.String("error", err.Error()))
		}
		return domain.Locked(d.RetryAfterSeconds())
	}
	loginAttempts.WithLabelValues(loginInvalidCredentials).Inc()
	return domain.InvalidCredentials()
}

// ResolveCurrentUser maps a bearer token to an active user.
func (s *AuthService) ResolveCurrentUser(ctx context.Context, token string) (*domain.User, error) {
	subject, err := s.tokens.Validate(token)
	if err != nil {
		s.logger.DebugContext(ctx, "bearer token rejected", slog.String("error", err.Error()))
		return nil, domain.Unauthenticated()
	}

	user, err := s.users.GetByEmail(ctx, domain.NormalizeEmail(subject))
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, domain.Unauthenticated()
		}
		return nil, fmt.Errorf("look up token subject: %w", err)
	}
	if !user.IsActive {
		return nil, domain.Unauthenticated()
	}
	return user, nil
}

// Register creates an active account.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*domain.User, error) {
	email := domain.NormalizeEmail(in.Email)
	if err := validateRegistration(email, in.Name); err != nil {
		return nil, err
	}
	if err := validatePassword(in.Password); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, domain.WeakPassword(err.Error())
	}

	user := &domain.User{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         strings.TrimSpace(in.Name),
		PasswordHash: hash,
		IsActive:     true,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, apperrors.ErrAlreadyExists) {
			return nil, domain.EmailTaken(email)
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	if err := s.events.PublishUserRegistered(ctx, user); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish user.registered event",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "user registered", slog.String("user_id", user.ID))
	return user, nil
}
