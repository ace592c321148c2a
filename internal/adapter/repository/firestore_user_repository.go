package repository

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"learnhub/internal/domain/entity"
	"learnhub/internal/domain/repository"
	"learnhub/pkg/errors"
)

const collectionUsers = "users"

type firestoreUserRepository struct {
	client *firestore.Client
}

func NewFirestoreUserRepository(client *firestore.Client) repository.UserRepository {
	return &firestoreUserRepository{
		client: client,
	}
}

func (r *firestoreUserRepository) GetByID(ctx context.Context, id string) (*entity.User, error) {
	doc, err := r.client.Collection(collectionUsers).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, errors.NotFound("User", nil)
		}
		return nil, errors.Internal("Failed to get user", err)
	}

	var user entity.User
	if err := doc.DataTo(&user); err != nil {
		return nil, errors.Internal("Failed to parse user data", err)
	}
	if user.ID == "" {
		user.ID = doc.Ref.ID
	}

	return &user, nil
}

// UpdatePresence merges only the presence fields so it never overwrites the
// profile written by the user service.
func (r *firestoreUserRepository) UpdatePresence(ctx context.Context, id string, online bool, lastSeen time.Time) error {
	onlineStatus := entity.OnlineStatusOffline
	if online {
		onlineStatus = entity.OnlineStatusOnline
	}

	_, err := r.client.Collection(collectionUsers).Doc(id).Set(ctx, map[string]interface{}{
		"onlineStatus": onlineStatus,
		"lastSeen":     lastSeen,
		"updatedAt":    time.Now(),
	}, firestore.MergeAll)
	if err != nil {
		return errors.Internal("Failed to update presence", err)
	}
	return nil
}
