package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/utafrali/InboxGo/internal/credential"
	"github.com/utafrali/InboxGo/internal/domain"
	"github.com/utafrali/InboxGo/pkg/database"
)

// CredentialRepository stores the delegated credential in a single-row
// table.
type CredentialRepository struct {
	db database.DBTX
}

// NewCredentialRepository creates a PostgreSQL-backed credential store.
func NewCredentialRepository(db database.DBTX) *CredentialRepository {
	return &CredentialRepository{db: db}
}

// Load returns the stored credential or credential.ErrNotFound.
func (r *CredentialRepository) Load(ctx context.Context) (_ *domain.DelegatedCredential, err error) {
	query := `
		SELECT access_token, refresh_token, token_type, expires_at, scopes, updated_at
		FROM delegated_credentials
		WHERE id = 1`

	ctx, end := database.TraceQuery(ctx, "LoadCredential", query)
	defer func() {
		if errors.Is(err, credential.ErrNotFound) {
			end(nil)
			return
		}
		end(err)
	}()

	var c domain.DelegatedCredential
	err = r.db.QueryRow(ctx, query).Scan(
		&c.AccessToken,
		&c.RefreshToken,
		&c.TokenType,
		&c.ExpiresAt,
		&c.Scopes,
		&c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, credential.ErrNotFound
		}
		return nil, fmt.Errorf("scan credential: %w", err)
	}
	return &c, nil
}

// Save upserts the credential row.
func (r *CredentialRepository) Save(ctx context.Context, c *domain.DelegatedCredential) (err error) {
	query := `
		INSERT INTO delegated_credentials (id, access_token, refresh_token, token_type, expires_at, scopes, updated_at)
		VALUES (1, $1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE
		SET access_token = EXCLUDED.access_token,
		    refresh_token = EXCLUDED.refresh_token,
		    token_type = EXCLUDED.token_type,
		    expires_at = EXCLUDED.expires_at,
		    scopes = EXCLUDED.scopes,
		    updated_at = EXCLUDED.updated_at`

	ctx, end := database.TraceQuery(ctx, "SaveCredential", query)
	defer func() { end(err) }()

	scopes := c.Scopes
	if scopes == nil {
		scopes = []string{}
	}
	_, err = r.db.Exec(ctx, query,
		c.AccessToken,
		c.RefreshToken,
		c.TokenType,
		c.ExpiresAt,
		scopes,
		c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert credential: %w", err)
	}
	return nil
}

// Delete removes the credential row. Deleting an absent row is not an error.
func (r *CredentialRepository) Delete(ctx context.Context) (err error) {
	query := `DELETE FROM delegated_credentials WHERE id = 1`

	ctx, end := database.TraceQuery(ctx, "DeleteCredential", query)
	defer func() { end(err) }()

	if _, err = r.db.Exec(ctx, query); err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	return nil
}
