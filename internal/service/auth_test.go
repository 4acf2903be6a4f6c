package service

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/utafrali/InboxGo/internal/auth"
	"github.com/utafrali/InboxGo/internal/domain"
	"github.com/utafrali/InboxGo/internal/throttle"
	apperrors "github.com/utafrali/InboxGo/pkg/errors"
)

// --- Mock User Repository ---

type mockUserRepository struct {
	mock.Mock
}

func (m *mockUserRepository) Create(ctx context.Context, user *domain.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *mockUserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *mockUserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *mockUserRepository) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	args := m.Called(ctx, id, at)
	return args.Error(0)
}

// --- Mock Event Publisher ---

type mockEvents struct {
	mock.Mock
}

func (m *mockEvents) PublishUserRegistered(ctx context.Context, user *domain.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *mockEvents) PublishLoginLocked(ctx context.Context, sessionKey string, retryAfterSeconds int) error {
	args := m.Called(ctx, sessionKey, retryAfterSeconds)
	return args.Error(0)
}

// --- Fixtures ---

const (
	testSecret   = "test-secret-that-is-at-least-32-characters"
	testPassword = "Sup3r!Secret"
	testSession  = "203.0.113.7"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	svc    *AuthService
	repo   *mockUserRepository
	events *mockEvents
	hasher *auth.PasswordHasher
	tokens *auth.TokenIssuer
	clock  *fakeClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := &fakeClock{t: time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)}
	hasher := auth.NewPasswordHasher(bcrypt.MinCost)
	tokens := auth.NewTokenIssuer(testSecret, auth.WithClock(clock.Now))
	th := throttle.New(throttle.NewMemoryStore(time.Hour), throttle.DefaultConfig()).WithClock(clock.Now)
	repo := &mockUserRepository{}
	events := &mockEvents{}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	svc := NewAuthService(repo, hasher, tokens, th, events, 30*time.Minute, logger)
	svc.now = clock.Now
	return &fixture{svc: svc, repo: repo, events: events, hasher: hasher, tokens: tokens, clock: clock}
}

func (f *fixture) user(t *testing.T, active bool) *domain.User {
	t.Helper()
	hash, err := f.hasher.Hash(testPassword)
	require.NoError(t, err)
	return &domain.User{
		ID:           "u-1",
		Email:        "alice@example.com",
		Name:         "Alice",
		PasswordHash: hash,
		IsActive:     active,
		CreatedAt:    f.clock.Now(),
	}
}

func (f *fixture) login(password string) (*LoginResult, error) {
	return f.svc.Login(context.Background(), LoginInput{
		Email:      "Alice@Example.com ",
		Password:   password,
		SessionKey: testSession,
	})
}

func appCode(t *testing.T, err error) string {
	t.Helper()
	var appErr *apperrors.AppError
	require.True(t, errors.As(err, &appErr), "expected AppError, got %v", err)
	return appErr.Code
}

// ============================================================================
// Login
// ============================================================================

func TestLogin_Success(t *testing.T) {
	f := newFixture(t)
	u := f.user(t, true)
	f.repo.On("GetByEmail", mock.Anything, "alice@example.com").Return(u, nil)
	f.repo.On("TouchLastLogin", mock.Anything, "u-1", f.clock.Now()).Return(nil)

	res, err := f.login(testPassword)
	require.NoError(t, err)
	assert.Equal(t, "bearer", res.TokenType)
	assert.Equal(t, f.clock.Now().Add(30*time.Minute), res.ExpiresAt)
	require.NotNil(t, res.User.LastLoginAt)

	sub, err := f.tokens.Validate(res.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", sub)
	f.repo.AssertExpectations(t)
}

func TestLogin_UnknownEmailSharesMessage(t *testing.T) {
	f := newFixture(t)
	f.repo.On("GetByEmail", mock.Anything, "alice@example.com").Return(nil, apperrors.ErrNotFound)

	_, err := f.login(testPassword)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)

	var appErr *apperrors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, domain.InvalidCredentialsMessage, appErr.Message)
}

func TestLogin_WrongPasswordSameMessageAsUnknown(t *testing.T) {
	f := newFixture(t)
	f.repo.On("GetByEmail", mock.Anything, "alice@example.com").Return(f.user(t, true), nil)

	_, err := f.login("Wr0ng!pass")
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
	assert.Equal(t, domain.InvalidCredentials().Message, err.(*apperrors.AppError).Message)
}

func TestLogin_SixthFailureLocks(t *testing.T) {
	f := newFixture(t)
	f.repo.On("GetByEmail", mock.Anything, "alice@example.com").Return(f.user(t, true), nil)
	f.events.On("PublishLoginLocked", mock.Anything, testSession, 900).Return(nil).Once()

	for i := 0; i < 5; i++ {
		_, err := f.login("Wr0ng!pass")
		require.ErrorIs(t, err, domain.ErrInvalidCredentials, "attempt %d", i+1)
	}

	_, err := f.login("Wr0ng!pass")
	require.ErrorIs(t, err, domain.ErrAccountLocked)
	locked := err.(*apperrors.AppError)
	assert.Equal(t, "ACCOUNT_LOCKED", locked.Code)
	assert.InDelta(t, 900, locked.RetryAfter, 1)

	_, err = f.login(testPassword)
	assert.ErrorIs(t, err, domain.ErrAccountLocked, "correct password is rejected while locked")
	f.events.AssertExpectations(t)
}

func TestLogin_UnknownEmailAttemptsCount(t *testing.T) {
	f := newFixture(t)
	f.repo.On("GetByEmail", mock.Anything, "alice@example.com").Return(nil, apperrors.ErrNotFound)
	f.events.On("PublishLoginLocked", mock.Anything, testSession, 900).Return(nil)

	for i := 0; i < 5; i++ {
		_, err := f.login("x")
		require.ErrorIs(t, err, domain.ErrInvalidCredentials)
	}
	_, err := f.login("x")
	assert.ErrorIs(t, err, domain.ErrAccountLocked)
}

func TestLogin_SuccessResetsCounter(t *testing.T) {
	f := newFixture(t)
	f.repo.On("GetByEmail", mock.Anything, "alice@example.com").Return(f.user(t, true), nil)
	f.repo.On("TouchLastLogin", mock.Anything, "u-1", mock.Anything).Return(nil)

	for i := 0; i < 5; i++ {
		_, _ = f.login("Wr0ng!pass")
	}
	_, err := f.login(testPassword)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err := f.login("Wr0ng!pass")
		require.ErrorIs(t, err, domain.ErrInvalidCredentials, "counter restarted, attempt %d", i+1)
	}
}

func TestLogin_LockoutExpiryReopens(t *testing.T) {
	f := newFixture(t)
	f.repo.On("GetByEmail", mock.Anything, "alice@example.com").Return(f.user(t, true), nil)
	f.repo.On("TouchLastLogin", mock.Anything, "u-1", mock.Anything).Return(nil)
	f.events.On("PublishLoginLocked", mock.Anything, testSession, 900).Return(nil)

	for i := 0; i < 6; i++ {
		_, _ = f.login("Wr0ng!pass")
	}
	f.clock.Advance(15 * time.Minute)

	_, err := f.login(testPassword)
	assert.NoError(t, err)
}

func TestLogin_InactiveAccountLooksLikeUnknownEmail(t *testing.T) {
	f := newFixture(t)
	f.repo.On("GetByEmail", mock.Anything, "alice@example.com").Return(f.user(t, false), nil)

	_, err := f.login(testPassword)
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
	assert.NotErrorIs(t, err, domain.ErrInactiveAccount)

	_, err = f.login("Wr0ng!pass")
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
	f.repo.AssertNotCalled(t, "TouchLastLogin", mock.Anything, mock.Anything, mock.Anything)
}

func TestLogin_InactiveAttemptsCount(t *testing.T) {
	f := newFixture(t)
	f.repo.On("GetByEmail", mock.Anything, "alice@example.com").Return(f.user(t, false), nil)

	for i := 0; i < 6; i++ {
		_, _ = f.login(testPassword)
	}
	_, err := f.login(testPassword)
	assert.ErrorIs(t, err, domain.ErrAccountLocked)
}

func TestLogin_TouchLastLoginFailureIsIgnored(t *testing.T) {
	f := newFixture(t)
	f.repo.On("GetByEmail", mock.Anything, "alice@example.com").Return(f.user(t, true), nil)
	f.repo.On("TouchLastLogin", mock.Anything, "u-1", mock.Anything).Return(errors.New("db down"))

	res, err := f.login(testPassword)
	require.NoError(t, err)
	assert.NotEmpty(t, res.AccessToken)
	assert.Nil(t, res.User.LastLoginAt)
}

func TestLogin_LookupError(t *testing.T) {
	f := newFixture(t)
	f.repo.On("GetByEmail", mock.Anything, "alice@example.com").Return(nil, errors.New("connection refused"))

	_, err := f.login(testPassword)
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrInvalidCredentials)
	assert.Contains(t, err.Error(), "connection refused")
}

type failingThrottle struct{}

func (failingThrottle) Check(context.Context, string) (throttle.Decision, error) {
	return throttle.Decision{}, errors.New("redis unavailable")
}

func (failingThrottle) CheckAndRecord(context.Context, string, bool) (throttle.Decision, error) {
	return throttle.Decision{}, errors.New("redis unavailable")
}

func TestLogin_ThrottleUnavailableFailsClosed(t *testing.T) {
	f := newFixture(t)
	f.svc.throttle = failingThrottle{}

	_, err := f.login(testPassword)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "check login throttle")
	f.repo.AssertNotCalled(t, "GetByEmail", mock.Anything, mock.Anything)
}

// ============================================================================
// ResolveCurrentUser
// ============================================================================

func TestResolveCurrentUser_Valid(t *testing.T) {
	f := newFixture(t)
	u := f.user(t, true)
	f.repo.On("GetByEmail", mock.Anything, "alice@example.com").Return(u, nil)

	token, _, err := f.tokens.Issue("alice@example.com", time.Minute)
	require.NoError(t, err)

	got, err := f.svc.ResolveCurrentUser(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "u-1", got.ID)
}

func TestResolveCurrentUser_SubjectGone(t *testing.T) {
	f := newFixture(t)
	f.repo.On("GetByEmail", mock.Anything, "ghost@example.com").Return(nil, apperrors.ErrNotFound)

	token, _, err := f.tokens.Issue("ghost@example.com", time.Minute)
	require.NoError(t, err)

	_, err = f.svc.ResolveCurrentUser(context.Background(), token)
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)
}

func TestResolveCurrentUser_Rejections(t *testing.T) {
	f := newFixture(t)
	f.repo.On("GetByEmail", mock.Anything, "alice@example.com").Return(f.user(t, false), nil)

	inactive, _, err := f.tokens.Issue("alice@example.com", time.Minute)
	require.NoError(t, err)
	expired, _, err := f.tokens.Issue("alice@example.com", time.Minute)
	require.NoError(t, err)

	_, err = f.svc.ResolveCurrentUser(context.Background(), inactive)
	assert.ErrorIs(t, err, domain.ErrUnauthenticated, "inactive user")

	_, err = f.svc.ResolveCurrentUser(context.Background(), "not-a-token")
	assert.ErrorIs(t, err, domain.ErrUnauthenticated, "malformed token")

	f.clock.Advance(time.Minute)
	_, err = f.svc.ResolveCurrentUser(context.Background(), expired)
	assert.ErrorIs(t, err, domain.ErrUnauthenticated, "expired token")
}

// ============================================================================
// Register
// ============================================================================

func TestRegister_Success(t *testing.T) {
	f := newFixture(t)
	f.repo.On("Create", mock.Anything, mock.MatchedBy(func(u *domain.User) bool {
		return u.Email == "bob@example.com" && u.Name == "Bob" && u.IsActive && u.ID != ""
	})).Return(nil)
	f.events.On("PublishUserRegistered", mock.Anything, mock.Anything).Return(nil)

	u, err := f.svc.Register(context.Background(), RegisterInput{
		Email:    " Bob@Example.com",
		Name:     " Bob ",
		Password: testPassword,
	})
	require.NoError(t, err)
	assert.True(t, f.hasher.Verify(testPassword, u.PasswordHash))
	assert.NotEqual(t, testPassword, u.PasswordHash)
	f.repo.AssertExpectations(t)
	f.events.AssertExpectations(t)
}

func TestRegister_EmailTaken(t *testing.T) {
	f := newFixture(t)
	f.repo.On("Create", mock.Anything, mock.Anything).Return(apperrors.AlreadyExists("user", "email", "bob@example.com"))

	_, err := f.svc.Register(context.Background(), RegisterInput{Email: "bob@example.com", Name: "Bob", Password: testPassword})
	assert.ErrorIs(t, err, domain.ErrEmailTaken)
	assert.Equal(t, "EMAIL_TAKEN", appCode(t, err))
	f.events.AssertNotCalled(t, "PublishUserRegistered", mock.Anything, mock.Anything)
}

func TestRegister_WeakPassword(t *testing.T) {
	tests := map[string]string{
		"too short":  "abc",
		"no upper":   "sup3r!secret",
		"no lower":   "SUP3R!SECRET",
		"no digit":   "Super!Secret",
		"no special": "Sup3rSecret",
		"too long":   "Aa1!" + string(make([]byte, 80)),
	}
	for name, pw := range tests {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.svc.Register(context.Background(), RegisterInput{Email: "bob@example.com", Name: "Bob", Password: pw})
			assert.ErrorIs(t, err, domain.ErrWeakPassword)
			f.repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
		})
	}
}

func TestRegister_InvalidInput(t *testing.T) {
	tests := map[string]RegisterInput{
		"bad email":   {Email: "not-an-email", Name: "Bob", Password: testPassword},
		"empty email": {Email: "", Name: "Bob", Password: testPassword},
		"short name":  {Email: "bob@example.com", Name: " B ", Password: testPassword},
	}
	for name, in := range tests {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.svc.Register(context.Background(), in)
			assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
		})
	}
}

func TestRegister_EventFailureIgnored(t *testing.T) {
	f := newFixture(t)
	f.repo.On("Create", mock.Anything, mock.Anything).Return(nil)
	f.events.On("PublishUserRegistered", mock.Anything, mock.Anything).Return(errors.New("kafka down"))

	_, err := f.svc.Register(context.Background(), RegisterInput{Email: "bob@example.com", Name: "Bob", Password: testPassword})
	assert.NoError(t, err)
}

func TestNewAuthService_DefaultTTL(t *testing.T) {
	svc := NewAuthService(nil, nil, nil, nil, nil, 0, slog.Default())
	assert.Equal(t, DefaultTokenTTL, svc.tokenTTL)
}
