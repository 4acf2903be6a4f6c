package config

import (
	"fmt"
	"time"

	pkgconfig "github.com/utafrali/InboxGo/pkg/config"
	"github.com/utafrali/InboxGo/pkg/database"
	"github.com/utafrali/InboxGo/pkg/observability"
	"github.com/utafrali/InboxGo/pkg/tracing"
)

const defaultJWTSecret = "change-this-to-a-secure-secret"

// Credential and attempt store backends.
const (
	CredentialStorePostgres = "postgres"
	CredentialStoreFile     = "file"

	ThrottleStoreMemory = "memory"
	ThrottleStoreRedis  = "redis"
)

// Config holds all configuration for the inbox service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort        int           `env:"INBOX_HTTP_PORT" envDefault:"8000"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`
	TrustForwarded  bool          `env:"TRUST_FORWARDED_FOR" envDefault:"false"`
	PprofAllowCIDRs []string      `env:"PPROF_ALLOWED_CIDRS" envSeparator:","`

	// PostgreSQL
	PostgresHost     string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort     int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser     string `env:"POSTGRES_USER" envDefault:"inbox"`
	PostgresPass     string `env:"POSTGRES_PASSWORD" envDefault:"inbox_secret"`
	PostgresDB       string `env:"INBOX_DB_NAME" envDefault:"inbox"`
	PostgresSSL      string `env:"POSTGRES_SSL_MODE" envDefault:"disable"`
	PostgresMaxConns int32  `env:"POSTGRES_MAX_CONNS" envDefault:"10"`

	// Redis
	RedisHost     string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort     int    `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// Kafka. An empty broker list disables event publishing.
	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`

	// JWT
	JWTSecret    string        `env:"JWT_SECRET" envDefault:"change-this-to-a-secure-secret"`
	JWTIssuer    string        `env:"JWT_ISSUER" envDefault:"inbox-service"`
	JWTAccessTTL time.Duration `env:"JWT_ACCESS_TOKEN_EXPIRY" envDefault:"30m"`
	JWTLeeway    time.Duration `env:"JWT_LEEWAY" envDefault:"0s"`
	BcryptCost   int           `env:"BCRYPT_COST" envDefault:"12"`

	// Login throttling
	ThrottleStore string        `env:"THROTTLE_STORE" envDefault:"memory"`
	MaxAttempts   int           `env:"LOGIN_MAX_ATTEMPTS" envDefault:"5"`
	LockoutPeriod time.Duration `env:"LOGIN_LOCKOUT_DURATION" envDefault:"15m"`
	AttemptWindow time.Duration `env:"LOGIN_INACTIVITY_WINDOW" envDefault:"15m"`

	// Delegated mail credential
	CredentialStore string        `env:"CREDENTIAL_STORE" envDefault:"postgres"`
	CredentialFile  string        `env:"CREDENTIAL_FILE" envDefault:"./data/token.json"`
	SafetyMargin    time.Duration `env:"CREDENTIAL_SAFETY_MARGIN" envDefault:"60s"`
	RefreshTimeout  time.Duration `env:"CREDENTIAL_REFRESH_TIMEOUT" envDefault:"10s"`
	RefreshBackoff  time.Duration `env:"CREDENTIAL_REFRESH_BACKOFF" envDefault:"500ms"`

	// OAuth client
	OAuthClientID     string   `env:"OAUTH_CLIENT_ID"`
	OAuthClientSecret string   `env:"OAUTH_CLIENT_SECRET"`
	OAuthRedirectURL  string   `env:"OAUTH_REDIRECT_URL" envDefault:"http://localhost:8000/oauth/callback"`
	OAuthScopes       []string `env:"OAUTH_SCOPES" envDefault:"https://www.googleapis.com/auth/gmail.readonly" envSeparator:","`
	OAuthAuthURL      string   `env:"OAUTH_AUTH_URL"`
	OAuthTokenURL     string   `env:"OAUTH_TOKEN_URL"`
	MailAPIBaseURL    string   `env:"MAIL_API_BASE_URL" envDefault:"https://gmail.googleapis.com"`

	// CORS
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"http://localhost:3000" envSeparator:","`

	// Observability
	SentryDSN          string        `env:"SENTRY_DSN"`
	OTelEnabled        bool          `env:"OTEL_ENABLED" envDefault:"false"`
	OTelEndpoint       string        `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTelInsecure       bool          `env:"OTEL_EXPORTER_OTLP_INSECURE" envDefault:"true"`
	OTelSampleRate     float64       `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`
	ServiceVersion     string        `env:"SERVICE_VERSION" envDefault:"0.1.0"`
	SlowQueryThreshold time.Duration `env:"SLOW_QUERY_THRESHOLD" envDefault:"200ms"`
}

// Load reads configuration from environment variables and an optional .env
// file.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load inbox config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// IsDevelopment reports whether relaxed defaults are allowed.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	switch c.CredentialStore {
	case CredentialStorePostgres, CredentialStoreFile:
	default:
		return fmt.Errorf("CREDENTIAL_STORE must be %q or %q, got %q", CredentialStorePostgres, CredentialStoreFile, c.CredentialStore)
	}
	if c.CredentialStore == CredentialStoreFile && c.CredentialFile == "" {
		return fmt.Errorf("CREDENTIAL_FILE is required when CREDENTIAL_STORE=%s", CredentialStoreFile)
	}
	switch c.ThrottleStore {
	case ThrottleStoreMemory, ThrottleStoreRedis:
	default:
		return fmt.Errorf("THROTTLE_STORE must be %q or %q, got %q", ThrottleStoreMemory, ThrottleStoreRedis, c.ThrottleStore)
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("LOGIN_MAX_ATTEMPTS must be positive, got %d", c.MaxAttempts)
	}
	for name, d := range map[string]time.Duration{
		"JWT_ACCESS_TOKEN_EXPIRY":    c.JWTAccessTTL,
		"LOGIN_LOCKOUT_DURATION":     c.LockoutPeriod,
		"LOGIN_INACTIVITY_WINDOW":    c.AttemptWindow,
		"CREDENTIAL_REFRESH_TIMEOUT": c.RefreshTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}
	if c.JWTLeeway < 0 {
		return fmt.Errorf("JWT_LEEWAY must not be negative, got %s", c.JWTLeeway)
	}
	if c.SafetyMargin < 0 || c.RefreshBackoff < 0 {
		return fmt.Errorf("credential margins must not be negative")
	}

	// In non-development environments, require an explicitly set, strong JWT
	// secret and a configured OAuth client.
	if !c.IsDevelopment() {
		if c.JWTSecret == defaultJWTSecret {
			return fmt.Errorf("JWT_SECRET must be explicitly set via environment variable in %q mode", c.Environment)
		}
		if len(c.JWTSecret) < 32 {
			return fmt.Errorf("JWT_SECRET must be at least 32 characters long, got %d", len(c.JWTSecret))
		}
		if c.OAuthClientID == "" || c.OAuthClientSecret == "" {
			return fmt.Errorf("OAUTH_CLIENT_ID and OAUTH_CLIENT_SECRET are required in %q mode", c.Environment)
		}
	}
	return nil
}

// Postgres returns the pool settings.
func (c *Config) Postgres() *database.PostgresConfig {
	pg := database.DefaultPostgresConfig()
	pg.Host = c.PostgresHost
	pg.Port = c.PostgresPort
	pg.User = c.PostgresUser
	pg.Password = c.PostgresPass
	pg.DBName = c.PostgresDB
	pg.SSLMode = c.PostgresSSL
	if c.PostgresMaxConns > 0 {
		pg.MaxConns = c.PostgresMaxConns
	}
	return &pg
}

// PostgresDSN returns the PostgreSQL connection string.
func (c *Config) PostgresDSN() string {
	return c.Postgres().DSN()
}

// Redis returns the Redis connection settings.
func (c *Config) Redis() database.RedisConfig {
	return database.RedisConfig{
		Host:     c.RedisHost,
		Port:     c.RedisPort,
		Password: c.RedisPassword,
		DB:       c.RedisDB,
	}
}

// Tracing returns the OpenTelemetry exporter settings.
func (c *Config) Tracing(serviceName string) tracing.Config {
	tc := tracing.DefaultConfig(serviceName)
	tc.ServiceVersion = c.ServiceVersion
	tc.Environment = c.Environment
	tc.OTLPEndpoint = c.OTelEndpoint
	tc.Insecure = c.OTelInsecure
	tc.SampleRate = c.OTelSampleRate
	tc.Enabled = c.OTelEnabled
	return tc
}

// Sentry returns the error reporting settings.
func (c *Config) Sentry() observability.SentryConfig {
	return observability.SentryConfig{
		DSN:         c.SentryDSN,
		Environment: c.Environment,
		Release:     c.ServiceVersion,
	}
}
