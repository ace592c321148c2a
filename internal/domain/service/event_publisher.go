package service

import (
	"context"

	"learnhub/internal/domain/entity"
)

// EventPublisher hands persisted chat events to downstream consumers such as
// the notification service.
type EventPublisher interface {
	PublishMessageSent(ctx context.Context, conv *entity.Conversation, msg *entity.Message) error
	Close() error
}
