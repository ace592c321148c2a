package service

import (
	"context"
	"time"

	"learnhub/internal/domain/entity"
)

// UploadTicket is handed to a client so it can upload an attachment directly
// to storage before referencing it in sendMessage.
type UploadTicket struct {
	UploadURL  string    `json:"uploadUrl"`
	StorageRef string    `json:"storageRef"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

type AttachmentStorage interface {
	SignedUploadURL(ctx context.Context, ownerID, fileName, mimeType string) (*UploadTicket, error)
	// Describe returns the stored object's metadata, or a NOT_FOUND error if
	// nothing has been uploaded under ref.
	Describe(ctx context.Context, ref string) (*entity.Attachment, error)
	Close() error
}

// AttachmentRefPrefix is the storage prefix every attachment uploaded by
// ownerID lives under. Messages may only reference their sender's uploads.
func AttachmentRefPrefix(ownerID string) string {
	return "chat/" + ownerID + "/"
}
