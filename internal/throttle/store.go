package throttle

import (
	"context"
	"errors"

	"github.com/utafrali/InboxGo/internal/domain"
)

// ErrContended is returned when a store could not commit an update after its
// bounded number of optimistic retries.
var ErrContended = errors.New("throttle: attempt record contended")

// MutateFunc maps the current record (nil when absent) to the next one.
// Returning nil deletes the record.
type MutateFunc func(cur *domain.LoginAttempt) (*domain.LoginAttempt, error)

// Store persists LoginAttempt records keyed by session.
type Store interface {
	// Get returns the record for key, or nil when absent.
	Get(ctx context.Context, key string) (*domain.LoginAttempt, error)

	// Update applies fn atomically for key.
	Update(ctx context.Context, key string, fn MutateFunc) error
}
