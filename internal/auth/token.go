package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token validation failures.
var (
	ErrExpiredToken     = errors.New("token expired")
	ErrMalformedToken   = errors.New("token malformed")
	ErrInvalidSignature = errors.New("token signature invalid")
)

// DefaultIssuer is stamped into the iss claim.
const DefaultIssuer = "inbox-service"

// TokenIssuer signs and validates HS256 bearer tokens whose subject is the
// user's email.
type TokenIssuer struct {
	secret []byte
	issuer string
	leeway time.Duration
	now    func() time.Time
}

// TokenOption customizes a TokenIssuer.
type TokenOption func(*TokenIssuer)

// WithIssuer overrides DefaultIssuer.
func WithIssuer(iss string) TokenOption {
	return func(t *TokenIssuer) { t.issuer = iss }
}

// WithLeeway tolerates clock skew when checking expiry.
func WithLeeway(d time.Duration) TokenOption {
	return func(t *TokenIssuer) { t.leeway = d }
}

// WithClock injects the time source.
func WithClock(now func() time.Time) TokenOption {
	return func(t *TokenIssuer) { t.now = now }
}

// NewTokenIssuer creates an issuer for secret.
func NewTokenIssuer(secret string, opts ...TokenOption) *TokenIssuer {
	t := &TokenIssuer{
		secret: []byte(secret),
		issuer: DefaultIssuer,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Issue signs a token for subject valid for ttl.
func (t *TokenIssuer) Issue(subject string, ttl time.Duration) (string, time.Time, error) {
	now := t.now().UTC()
	exp := jwt.NewNumericDate(ceilToPrecision(now.Add(ttl)))
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    t.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: exp,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp.Time, nil
}

// ceilToPrecision rounds up to the claim precision so a token never expires
// before now+ttl.
func ceilToPrecision(ts time.Time) time.Time {
	rounded := ts.Truncate(jwt.TimePrecision)
	if rounded.Before(ts) {
		rounded = rounded.Add(jwt.TimePrecision)
	}
	return rounded
}

// Validate verifies the signature, then issuer and subject, then expiry.
// A token is expired once now >= exp + leeway.
func (t *TokenIssuer) Validate(token string) (string, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenMalformed) {
			return "", fmt.Errorf("%w: %v", ErrMalformedToken, err)
		}
		return "", fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	if claims.Issuer != t.issuer {
		return "", fmt.Errorf("%w: unexpected issuer %q", ErrMalformedToken, claims.Issuer)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: missing subject", ErrMalformedToken)
	}
	if claims.ExpiresAt == nil {
		return "", fmt.Errorf("%w: missing exp", ErrMalformedToken)
	}
	if !t.now().Before(claims.ExpiresAt.Add(t.leeway)) {
		return "", ErrExpiredToken
	}
	return claims.Subject, nil
}
