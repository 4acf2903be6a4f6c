package repository

import (
	"context"
	"time"

	"github.com/utafrali/InboxGo/internal/credential"
	"github.com/utafrali/InboxGo/internal/domain"
)

// UserRepository defines the interface for user persistence operations.
// Emails passed in are already normalized.
type UserRepository interface {
	// Create inserts a new user. A taken email yields apperrors.ErrAlreadyExists.
	Create(ctx context.Context, user *domain.User) error

	// GetByID retrieves a user by their unique identifier.
	GetByID(ctx context.Context, id string) (*domain.User, error)

	// GetByEmail retrieves a user by their email address.
	GetByEmail(ctx context.Context, email string) (*domain.User, error)

	// TouchLastLogin records a successful login time.
	TouchLastLogin(ctx context.Context, id string, at time.Time) error
}

// CredentialRepository is the persistence contract for the delegated
// credential; both the postgres and file backends satisfy it.
type CredentialRepository = credential.Store
