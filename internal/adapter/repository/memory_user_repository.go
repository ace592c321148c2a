package repository

import (
	"context"
	"sync"
	"time"

	"learnhub/internal/domain/entity"
	"learnhub/pkg/errors"
)

// MemoryUserRepository is an in-process account directory. Accounts are
// added with Put; in development the auth layer seeds them on first sight.
type MemoryUserRepository struct {
	mu    sync.RWMutex
	users map[string]*entity.User
}

func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{
		users: make(map[string]*entity.User),
	}
}

func (r *MemoryUserRepository) Put(user *entity.User) {
	u := *user
	if u.Status == "" {
		u.Status = entity.UserStatusActive
	}
	if u.OnlineStatus == "" {
		u.OnlineStatus = entity.OnlineStatusOffline
	}

	r.mu.Lock()
	r.users[u.ID] = &u
	r.mu.Unlock()
}

func (r *MemoryUserRepository) GetByID(ctx context.Context, id string) (*entity.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.users[id]
	if !ok {
		return nil, errors.NotFound("User", nil)
	}
	u := *user
	return &u, nil
}

func (r *MemoryUserRepository) UpdatePresence(ctx context.Context, id string, online bool, lastSeen time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[id]
	if !ok {
		return errors.NotFound("User", nil)
	}
	user.OnlineStatus = entity.OnlineStatusOffline
	if online {
		user.OnlineStatus = entity.OnlineStatusOnline
	}
	user.LastSeen = lastSeen
	user.UpdatedAt = time.Now()
	return nil
}
