package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const strongSecret = "this-is-a-very-secure-secret-key-for-production-use-1234"

// setEnvs sets multiple env vars for the duration of the test.
func setEnvs(t *testing.T, envs map[string]string) {
	t.Helper()
	for k, v := range envs {
		t.Setenv(k, v)
	}
}

func production(extra map[string]string) map[string]string {
	envs := map[string]string{
		"ENVIRONMENT":         "production",
		"JWT_SECRET":          strongSecret,
		"OAUTH_CLIENT_ID":     "client-id",
		"OAUTH_CLIENT_SECRET": "client-secret",
	}
	for k, v := range extra {
		envs[k] = v
	}
	return envs
}

func TestLoad_JWTLeeway(t *testing.T) {
	setEnvs(t, map[string]string{"ENVIRONMENT": "development", "JWT_LEEWAY": "30s"})

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, cfg.JWTLeeway)
}

func TestLoad_Defaults(t *testing.T) {
	setEnvs(t, map[string]string{"ENVIRONMENT": "development"})

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, 8000, cfg.HTTPPort)
	assert.Equal(t, 30*time.Minute, cfg.JWTAccessTTL)
	assert.Zero(t, cfg.JWTLeeway)
	assert.Equal(t, 5, cfg.MaxAttempts)
	assert.Equal(t, 15*time.Minute, cfg.LockoutPeriod)
	assert.Equal(t, 15*time.Minute, cfg.AttemptWindow)
	assert.Equal(t, 60*time.Second, cfg.SafetyMargin)
	assert.Equal(t, 10*time.Second, cfg.RefreshTimeout)
	assert.Equal(t, CredentialStorePostgres, cfg.CredentialStore)
	assert.Equal(t, "./data/token.json", cfg.CredentialFile)
	assert.Equal(t, ThrottleStoreMemory, cfg.ThrottleStore)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.Equal(t, []string{"https://www.googleapis.com/auth/gmail.readonly"}, cfg.OAuthScopes)
}

func TestLoad_Development_AcceptsDefaultSecret(t *testing.T) {
	setEnvs(t, map[string]string{
		"ENVIRONMENT": "development",
		"JWT_SECRET":  defaultJWTSecret,
	})

	cfg, err := Load()

	require.NoError(t, err)
	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, defaultJWTSecret, cfg.JWTSecret)
}

func TestLoad_NonDevelopment_SecretRules(t *testing.T) {
	tests := []struct {
		name    string
		env     string
		secret  string
		wantErr string
	}{
		{"production default", "production", defaultJWTSecret, "JWT_SECRET must be explicitly set"},
		{"staging default", "staging", defaultJWTSecret, "JWT_SECRET must be explicitly set"},
		{"short", "production", "short-but-not-default-secret", "JWT_SECRET must be at least 32 characters"},
		{"31 chars", "production", "abcdefghijklmnopqrstuvwxyz12345", "JWT_SECRET must be at least 32 characters"},
		{"32 chars", "production", "abcdefghijklmnopqrstuvwxyz123456", ""},
		{"strong", "production", strongSecret, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setEnvs(t, production(map[string]string{"ENVIRONMENT": tt.env, "JWT_SECRET": tt.secret}))

			cfg, err := Load()

			if tt.wantErr != "" {
				assert.Nil(t, cfg)
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.secret, cfg.JWTSecret)
		})
	}
}

func TestLoad_Production_RequiresOAuthClient(t *testing.T) {
	setEnvs(t, production(map[string]string{"OAUTH_CLIENT_SECRET": ""}))

	cfg, err := Load()

	assert.Nil(t, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OAUTH_CLIENT_ID and OAUTH_CLIENT_SECRET are required")
}

func TestLoad_Backends(t *testing.T) {
	setEnvs(t, map[string]string{
		"ENVIRONMENT":      "development",
		"CREDENTIAL_STORE": "file",
		"CREDENTIAL_FILE":  "/var/lib/inbox/token.json",
		"THROTTLE_STORE":   "redis",
		"KAFKA_BROKERS":    "k1:9092,k2:9092",
	})

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, CredentialStoreFile, cfg.CredentialStore)
	assert.Equal(t, "/var/lib/inbox/token.json", cfg.CredentialFile)
	assert.Equal(t, ThrottleStoreRedis, cfg.ThrottleStore)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		envs    map[string]string
		wantErr string
	}{
		{"credential store", map[string]string{"CREDENTIAL_STORE": "sqlite"}, "CREDENTIAL_STORE must be"},
		{"throttle store", map[string]string{"THROTTLE_STORE": "memcached"}, "THROTTLE_STORE must be"},
		{"port", map[string]string{"INBOX_HTTP_PORT": "70000"}, "invalid HTTP port"},
		{"max attempts", map[string]string{"LOGIN_MAX_ATTEMPTS": "0"}, "LOGIN_MAX_ATTEMPTS must be positive"},
		{"lockout", map[string]string{"LOGIN_LOCKOUT_DURATION": "0s"}, "LOGIN_LOCKOUT_DURATION must be positive"},
		{"duration syntax", map[string]string{"JWT_ACCESS_TOKEN_EXPIRY": "half an hour"}, "parse config"},
		{"negative leeway", map[string]string{"JWT_LEEWAY": "-5s"}, "JWT_LEEWAY must not be negative"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("ENVIRONMENT", "development")
			setEnvs(t, tt.envs)

			cfg, err := Load()

			assert.Nil(t, cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_Derived(t *testing.T) {
	setEnvs(t, map[string]string{
		"ENVIRONMENT":       "development",
		"POSTGRES_HOST":     "db",
		"POSTGRES_PASSWORD": "pw",
		"REDIS_HOST":        "cache",
		"OTEL_ENABLED":      "true",
		"SENTRY_DSN":        "https://key@sentry.example.com/1",
	})

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres://inbox:pw@db:5432/inbox?sslmode=disable", cfg.PostgresDSN())
	assert.Equal(t, "cache:6379", cfg.Redis().Addr())

	tc := cfg.Tracing("inbox")
	assert.True(t, tc.Enabled)
	assert.Equal(t, "inbox", tc.ServiceName)
	assert.Equal(t, "localhost:4318", tc.OTLPEndpoint)

	assert.Equal(t, "https://key@sentry.example.com/1", cfg.Sentry().DSN)
}
