package event

import (
	"context"
	"fmt"
	"log/slog"

	pkgkafka "github.com/anvit-dd/pi-drive/pkg/kafka"
)

// TopicRevokeRequested carries administrative requests to end every session
// of a user, for example after a password change elsewhere.
var TopicRevokeRequested = pkgkafka.Topic("session", "revoke_requested")

// RevokeRequestedData is the expected payload of a session.revoke_requested
// event.
type RevokeRequestedData struct {
	UserID string `json:"user_id"`
	Reason string `json:"reason,omitempty"`
}

// SessionRevoker defines the interface required by the event consumer.
type SessionRevoker interface {
	RevokeAllForUser(ctx context.Context, userID, reason string) (int64, error)
}

// Consumer processes incoming Kafka events for the auth service.
type Consumer struct {
	revoker SessionRevoker
	reason  string
	logger  *slog.Logger
}

// NewConsumer creates a new event consumer. reason is recorded on every
// revocation it performs.
func NewConsumer(revoker SessionRevoker, reason string, logger *slog.Logger) *Consumer {
	return &Consumer{
		revoker: revoker,
		reason:  reason,
		logger:  logger,
	}
}

// HandleRevokeRequested revokes every refresh token of the requested user.
// Malformed payloads are rejected so they reach the dead-letter topic.
func (c *Consumer) HandleRevokeRequested(ctx context.Context, event *pkgkafka.Event) error {
	var data RevokeRequestedData
	if err := event.UnmarshalData(&data); err != nil {
		return fmt.Errorf("unmarshal session.revoke_requested data: %w", err)
	}
	if data.UserID == "" {
		return fmt.Errorf("session.revoke_requested event %s: missing user_id", event.EventID)
	}

	n, err := c.revoker.RevokeAllForUser(ctx, data.UserID, c.reason)
	if err != nil {
		return fmt.Errorf("revoke sessions for user %s: %w", data.UserID, err)
	}

	c.logger.InfoContext(ctx, "sessions revoked on request",
		slog.String("user_id", data.UserID),
		slog.String("requested_reason", data.Reason),
		slog.Int64("revoked", n),
	)
	return nil
}
