package domain

import (
	"errors"
	"net/http"

	apperrors "github.com/utafrali/InboxGo/pkg/errors"
)

// Sentinels for the authentication and credential error taxonomy. Callers
// match with errors.Is; the constructors below wrap them in AppError for
// transport.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountLocked      = errors.New("account locked")
	ErrInactiveAccount    = errors.New("inactive account")
	ErrEmailTaken         = errors.New("email taken")
	ErrWeakPassword       = errors.New("weak password")
	ErrUnauthenticated    = errors.New("unauthenticated")
	ErrConsentRequired    = errors.New("consent required")
	ErrRefreshFailed      = errors.New("refresh failed")
)

// InvalidCredentialsMessage is shared by wrong-password and unknown-email
// failures.
const InvalidCredentialsMessage = "invalid email or password"

func InvalidCredentials() *apperrors.AppError {
	return apperrors.New("INVALID_CREDENTIALS", InvalidCredentialsMessage, http.StatusUnauthorized, ErrInvalidCredentials)
}

// Locked reports a throttled session with the seconds left on the lock.
func Locked(retryAfterSeconds int) *apperrors.AppError {
	e := apperrors.New("ACCOUNT_LOCKED", "too many failed login attempts, try again later", http.StatusTooManyRequests, ErrAccountLocked)
	e.RetryAfter = retryAfterSeconds
	return e
}

func InactiveAccount() *apperrors.AppError {
	return apperrors.New("INACTIVE_ACCOUNT", "account is inactive", http.StatusForbidden, ErrInactiveAccount)
}

func EmailTaken(email string) *apperrors.AppError {
	return apperrors.New("EMAIL_TAKEN", "email "+email+" is already registered", http.StatusConflict, ErrEmailTaken)
}

// WeakPassword names the first policy rule the password failed.
func WeakPassword(reason string) *apperrors.AppError {
	return apperrors.New("WEAK_PASSWORD", reason, http.StatusBadRequest, ErrWeakPassword)
}

func Unauthenticated() *apperrors.AppError {
	return apperrors.New("UNAUTHENTICATED", "could not validate credentials", http.StatusUnauthorized, ErrUnauthenticated)
}

// ConsentRequired means no usable mail credential exists and an operator has
// to run the consent flow.
func ConsentRequired() *apperrors.AppError {
	return apperrors.New("CONSENT_REQUIRED", "mail provider authorization required", http.StatusServiceUnavailable, ErrConsentRequired)
}

// RefreshFailed wraps cause, which is kept for logs and never rendered.
func RefreshFailed(cause error) *apperrors.AppError {
	return apperrors.New("REFRESH_FAILED", "could not refresh mail provider credential", http.StatusBadGateway, errors.Join(ErrRefreshFailed, cause))
}
