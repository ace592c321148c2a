package repository

import (
	"context"
	"time"

	"learnhub/internal/domain/entity"
)

// UserRepository is the account directory consumed by the chat core.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*entity.User, error)
	UpdatePresence(ctx context.Context, id string, online bool, lastSeen time.Time) error
}
