package credential

import (
	"context"
	"errors"

	"github.com/utafrali/InboxGo/internal/domain"
)

var (
	// ErrNotFound is returned by a Store holding no credential.
	ErrNotFound = errors.New("credential: not found")

	// ErrGrantRevoked is returned by a Refresher when the provider rejects the
	// refresh token for good (invalid_grant).
	ErrGrantRevoked = errors.New("credential: grant revoked")

	// ErrTransient is returned by a Refresher for failures worth one retry,
	// such as network errors and provider 5xx.
	ErrTransient = errors.New("credential: transient refresh failure")
)

// Store persists the single delegated credential.
type Store interface {
	Load(ctx context.Context) (*domain.DelegatedCredential, error)
	Save(ctx context.Context, cred *domain.DelegatedCredential) error
	Delete(ctx context.Context) error
}

// Refresher exchanges a refresh token for a new credential. The returned
// credential may omit RefreshToken when the provider does not rotate it.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*domain.DelegatedCredential, error)
}

// Notifier is told about lifecycle transitions. Implementations must not
// block for long.
type Notifier interface {
	CredentialRefreshed(ctx context.Context, cred *domain.DelegatedCredential)
	ConsentRequired(ctx context.Context, reason string)
}

type nopNotifier struct{}

func (nopNotifier) CredentialRefreshed(context.Context, *domain.DelegatedCredential) {}
func (nopNotifier) ConsentRequired(context.Context, string)                         {}
