package http

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/InboxGo/internal/domain"
	"github.com/utafrali/InboxGo/internal/mail"
	"github.com/utafrali/InboxGo/internal/service"
	"github.com/utafrali/InboxGo/pkg/health"
	"github.com/utafrali/InboxGo/pkg/httputil"
)

// ============================================================================
// Mocks
// ============================================================================

type mockAuth struct {
	mock.Mock
}

func (m *mockAuth) Login(ctx context.Context, in service.LoginInput) (*service.LoginResult, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.LoginResult), args.Error(1)
}

func (m *mockAuth) Register(ctx context.Context, in service.RegisterInput) (*domain.User, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *mockAuth) ResolveCurrentUser(ctx context.Context, token string) (*domain.User, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

type mockMail struct {
	mock.Mock
}

func (m *mockMail) List(ctx context.Context, max int) ([]mail.Message, error) {
	args := m.Called(ctx, max)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]mail.Message), args.Error(1)
}

func (m *mockMail) Get(ctx context.Context, id string) (*mail.Message, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*mail.Message), args.Error(1)
}

func (m *mockMail) Attachment(ctx context.Context, messageID, attachmentID string) ([]byte, error) {
	args := m.Called(ctx, messageID, attachmentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

type mockConsent struct {
	mock.Mock
}

func (m *mockConsent) AuthCodeURL(state string) string {
	return m.Called(state).String(0)
}

func (m *mockConsent) Exchange(ctx context.Context, code string) (*domain.DelegatedCredential, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.DelegatedCredential), args.Error(1)
}

type mockCredentials struct {
	mock.Mock
}

func (m *mockCredentials) Store(ctx context.Context, cred *domain.DelegatedCredential) error {
	return m.Called(ctx, cred).Error(0)
}

func (m *mockCredentials) Status(ctx context.Context) (domain.CredentialStatus, error) {
	args := m.Called(ctx)
	return args.Get(0).(domain.CredentialStatus), args.Error(1)
}

// ============================================================================
// Test Helpers
// ============================================================================

const (
	testToken  = "valid-token"
	testUserID = "550e8400-e29b-41d4-a716-446655440001"
)

type testDeps struct {
	auth    *mockAuth
	mail    *mockMail
	consent *mockConsent
	creds   *mockCredentials
	router  http.Handler
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func sampleUser() *domain.User {
	return &domain.User{
		ID:        testUserID,
		Email:     "alice@example.com",
		Name:      "Alice",
		IsActive:  true,
		CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func newTestRouter(t *testing.T) *testDeps {
	t.Helper()
	d := &testDeps{
		auth:    new(mockAuth),
		mail:    new(mockMail),
		consent: new(mockConsent),
		creds:   new(mockCredentials),
	}
	d.auth.On("ResolveCurrentUser", mock.Anything, testToken).Return(sampleUser(), nil).Maybe()
	d.auth.On("ResolveCurrentUser", mock.Anything, mock.MatchedBy(func(tok string) bool { return tok != testToken })).
		Return(nil, domain.Unauthenticated()).Maybe()

	d.router = NewRouter(RouterConfig{
		Auth:        d.auth,
		Mail:        d.mail,
		Consent:     d.consent,
		Credentials: d.creds,
		Health:      health.NewHandler(),
		Logger:      testLogger(),
	})
	t.Cleanup(func() {
		d.auth.AssertExpectations(t)
		d.mail.AssertExpectations(t)
		d.consent.AssertExpectations(t)
		d.creds.AssertExpectations(t)
	})
	return d
}

func (d *testDeps) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	d.router.ServeHTTP(rec, req)
	return rec
}

func authed(req *http.Request) *http.Request {
	req.Header.Set("Authorization", "Bearer "+testToken)
	return req
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) httputil.Response {
	t.Helper()
	var resp httputil.Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	require.NoError(t, json.Unmarshal(env.Data, dst))
}
