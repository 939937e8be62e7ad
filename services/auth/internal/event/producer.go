package event

import (
	"context"
	"fmt"
	"log/slog"

	pkgkafka "github.com/anvit-dd/pi-drive/pkg/kafka"
	"github.com/anvit-dd/pi-drive/services/auth/internal/domain"
)

// Kafka topics published by the auth service.
var (
	TopicUserRegistered       = pkgkafka.Topic("user", "registered")
	TopicSessionIssued        = pkgkafka.Topic("session", "issued")
	TopicSessionRotated       = pkgkafka.Topic("session", "rotated")
	TopicSessionRevoked       = pkgkafka.Topic("session", "revoked")
	TopicSessionReuseDetected = pkgkafka.Topic("session", "reuse_detected")
)

// SourceAuthService identifies events originating from the auth service.
const SourceAuthService = "auth-service"

// UserRegisteredData is the payload for a user.registered event.
type UserRegisteredData struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	Role     string `json:"role"`
	Provider string `json:"provider"`
}

// SessionIssuedData is the payload for a session.issued event.
type SessionIssuedData struct {
	UserID  string `json:"user_id"`
	TokenID string `json:"token_id"`
}

// SessionRotatedData is the payload for a session.rotated event.
type SessionRotatedData struct {
	UserID      string `json:"user_id"`
	FromTokenID string `json:"from_token_id"`
	ToTokenID   string `json:"to_token_id"`
}

// SessionRevokedData is the payload for a session.revoked event.
type SessionRevokedData struct {
	UserID string `json:"user_id"`
	Reason string `json:"reason"`
	Count  int64  `json:"count"`
}

// ReuseDetectedData is the payload for a session.reuse_detected event.
type ReuseDetectedData struct {
	UserID  string `json:"user_id"`
	TokenID string `json:"token_id"`
	Revoked int64  `json:"revoked"`
}

// Publisher is the part of *pkgkafka.Producer the event producer needs.
type Publisher interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// Producer publishes session lifecycle events to Kafka.
type Producer struct {
	kafka  Publisher
	logger *slog.Logger
}

// NewProducer creates a new event producer for the auth service.
func NewProducer(kafka Publisher, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

// PublishUserRegistered publishes a user.registered event.
func (p *Producer) PublishUserRegistered(ctx context.Context, user *domain.User) error {
	data := UserRegisteredData{
		ID:       user.ID,
		Email:    user.Email,
		Name:     user.Name,
		Role:     user.Role,
		Provider: user.Provider,
	}
	return p.publish(ctx, TopicUserRegistered, user.ID, data)
}

// PublishSessionIssued publishes a session.issued event.
func (p *Producer) PublishSessionIssued(ctx context.Context, userID, tokenID string) error {
	return p.publish(ctx, TopicSessionIssued, userID, SessionIssuedData{UserID: userID, TokenID: tokenID})
}

// PublishSessionRotated publishes a session.rotated event.
func (p *Producer) PublishSessionRotated(ctx context.Context, userID, fromTokenID, toTokenID string) error {
	return p.publish(ctx, TopicSessionRotated, userID, SessionRotatedData{
		UserID:      userID,
		FromTokenID: fromTokenID,
		ToTokenID:   toTokenID,
	})
}

// PublishSessionsRevoked publishes a session.revoked event. Nothing is sent
// when no token changed.
func (p *Producer) PublishSessionsRevoked(ctx context.Context, userID, reason string, count int64) error {
	if count == 0 {
		return nil
	}
	return p.publish(ctx, TopicSessionRevoked, userID, SessionRevokedData{
		UserID: userID,
		Reason: reason,
		Count:  count,
	})
}

// PublishReuseDetected publishes a session.reuse_detected event.
func (p *Producer) PublishReuseDetected(ctx context.Context, userID, tokenID string, revoked int64) error {
	return p.publish(ctx, TopicSessionReuseDetected, userID, ReuseDetectedData{
		UserID:  userID,
		TokenID: tokenID,
		Revoked: revoked,
	})
}

func (p *Producer) publish(ctx context.Context, topic, userID string, data any) error {
	event, err := pkgkafka.NewEvent(topic, userID, SourceAuthService, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}

	if err := p.kafka.Publish(ctx, topic, event); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}

	p.logger.DebugContext(ctx, "published event",
		slog.String("topic", topic),
		slog.String("user_id", userID),
	)
	return nil
}
