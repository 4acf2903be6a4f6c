package event

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/utafrali/InboxGo/internal/domain"
	pkgkafka "github.com/utafrali/InboxGo/pkg/kafka"
	"github.com/utafrali/InboxGo/pkg/logger"
)

// Kafka topics for inbox domain events.
const (
	TopicUserRegistered            = "inbox.user.registered"
	TopicLoginLocked               = "inbox.auth.login_locked"
	TopicCredentialRefreshed       = "inbox.credential.refreshed"
	TopicCredentialConsentRequired = "inbox.credential.consent_required"
)

// Aggregate types.
const (
	AggregateTypeUser       = "user"
	AggregateTypeSession    = "session"
	AggregateTypeCredential = "credential"
)

// SourceInbox identifies events produced by this service.
const SourceInbox = "inbox"

// credentialAggregateID is fixed: there is one credential per deployment.
const credentialAggregateID = "mail-provider"

// UserRegisteredData is the payload for user.registered.
type UserRegisteredData struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// LoginLockedData is the payload for auth.login_locked.
type LoginLockedData struct {
	SessionKey        string `json:"session_key"`
	RetryAfterSeconds int    `json:"retry_after_seconds"`
}

// CredentialRefreshedData is the payload for credential.refreshed. It never
// carries token values.
type CredentialRefreshedData struct {
	ExpiresAt time.Time `json:"expires_at"`
	Scopes    []string  `json:"scopes,omitempty"`
}

// ConsentRequiredData is the payload for credential.consent_required.
type ConsentRequiredData struct {
	Reason string `json:"reason"`
}

// Publisher is satisfied by *pkgkafka.Producer.
type Publisher interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// Producer publishes inbox domain events. A nil Publisher disables
// publishing.
type Producer struct {
	publisher Publisher
	logger    *slog.Logger
}

// NewProducer creates an event producer.
func NewProducer(publisher Publisher, logger *slog.Logger) *Producer {
	return &Producer{publisher: publisher, logger: logger}
}

func (p *Producer) publish(ctx context.Context, topic, aggregateID, aggregateType string, data any) error {
	if p.publisher == nil {
		return nil
	}
	event, err := pkgkafka.NewEvent(topic, aggregateID, aggregateType, SourceInbox, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		event.WithCorrelationID(id)
	}
	if err := p.publisher.Publish(ctx, topic, event); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}
	p.logger.DebugContext(ctx, "published event",
		slog.String("topic", topic),
		slog.String("aggregate_id", aggregateID),
	)
	return nil
}

// PublishUserRegistered publishes user.registered.
func (p *Producer) PublishUserRegistered(ctx context.Context, user *domain.User) error {
	return p.publish(ctx, TopicUserRegistered, user.ID, AggregateTypeUser, UserRegisteredData{
		ID:    user.ID,
		Email: user.Email,
		Name:  user.Name,
	})
}

// PublishLoginLocked publishes auth.login_locked.
func (p *Producer) PublishLoginLocked(ctx context.Context, sessionKey string, retryAfterSeconds int) error {
	return p.publish(ctx, TopicLoginLocked, sessionKey, AggregateTypeSession, LoginLockedData{
		SessionKey:        sessionKey,
		RetryAfterSeconds: retryAfterSeconds,
	})
}

// CredentialRefreshed implements credential.Notifier.
func (p *Producer) CredentialRefreshed(ctx context.Context, cred *domain.DelegatedCredential) {
	err := p.publish(ctx, TopicCredentialRefreshed, credentialAggregateID, AggregateTypeCredential, CredentialRefreshedData{
		ExpiresAt: cred.ExpiresAt,
		Scopes:    cred.Scopes,
	})
	if err != nil {
		p.logger.WarnContext(ctx, "failed to publish credential event", slog.String("error", err.Error()))
	}
}

// ConsentRequired implements credential.Notifier.
func (p *Producer) ConsentRequired(ctx context.Context, reason string) {
	err := p.publish(ctx, TopicCredentialConsentRequired, credentialAggregateID, AggregateTypeCredential, ConsentRequiredData{
		Reason: reason,
	})
	if err != nil {
		p.logger.WarnContext(ctx, "failed to publish credential event", slog.String("error", err.Error()))
	}
}
