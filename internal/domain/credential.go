package domain

import (
	"slices"
	"time"
)

// DefaultTokenType is used when the provider does not report one.
const DefaultTokenType = "Bearer"

// DelegatedCredential is the service-wide OAuth2 credential for the mail
// provider.
type DelegatedCredential struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenType    string    `json:"token_type"`
	ExpiresAt    time.Time `json:"expires_at"`
	Scopes       []string  `json:"scopes,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ValidAt reports whether the access token is still usable at now, keeping
// margin in reserve before expiry.
func (c *DelegatedCredential) ValidAt(now time.Time, margin time.Duration) bool {
	return c.AccessToken != "" && now.Before(c.ExpiresAt.Add(-margin))
}

// Clone returns a deep copy so callers never share the cached value.
func (c *DelegatedCredential) Clone() *DelegatedCredential {
	if c == nil {
		return nil
	}
	out := *c
	out.Scopes = slices.Clone(c.Scopes)
	return &out
}

// CredentialStatus is the operator view of the credential. It carries no
// secrets.
type CredentialStatus struct {
	Present         bool       `json:"present"`
	Expired         bool       `json:"expired"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
	Scopes          []string   `json:"scopes,omitempty"`
	HasRefreshToken bool       `json:"has_refresh_token"`
	UpdatedAt       *time.Time `json:"updated_at,omitempty"`
}
