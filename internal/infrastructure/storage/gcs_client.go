package storage

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"google.golang.org/api/option"

	"learnhub/internal/domain/entity"
	"learnhub/internal/domain/service"
	"learnhub/pkg/errors"
	"learnhub/pkg/logger"
)

const (
	uploadURLExpiry = 15 * time.Minute
	maxFileNameLen  = 128
)

var allowedMimeTypes = map[string]bool{
	"image/jpeg":      true,
	"image/png":       true,
	"image/gif":       true,
	"image/webp":      true,
	"application/pdf": true,
	"text/plain":      true,
	"application/zip": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document":   true,
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": true,
}

// CloudStorageClient issues signed upload URLs for chat attachments and
// checks uploaded objects before a message may reference them.
type CloudStorageClient struct {
	client     *storage.Client
	bucketName string
}

func NewCloudStorageClient(ctx context.Context, bucketName string, allowedOrigins []string, opts ...option.ClientOption) (*CloudStorageClient, error) {
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %v", err)
	}

	storageClient := &CloudStorageClient{
		client:     client,
		bucketName: bucketName,
	}

	if err := storageClient.setBucketCORS(ctx, allowedOrigins); err != nil {
		logger.Warn("Failed to set CORS configuration on bucket %s: %v", bucketName, err)
	}

	return storageClient, nil
}

// setBucketCORS lets browsers PUT directly to signed URLs. An existing CORS
// configuration is left alone.
func (c *CloudStorageClient) setBucketCORS(ctx context.Context, origins []string) error {
	bucket := c.client.Bucket(c.bucketName)

	bucketAttrs, err := bucket.Attrs(ctx)
	if err != nil {
		return fmt.Errorf("failed to get bucket attributes: %v", err)
	}
	if len(bucketAttrs.CORS) > 0 {
		return nil
	}

	_, err = bucket.Update(ctx, storage.BucketAttrsToUpdate{
		CORS: []storage.CORS{{
			MaxAge:          time.Hour,
			Methods:         []string{http.MethodGet, http.MethodPut, http.MethodOptions},
			Origins:         origins,
			ResponseHeaders: []string{"Content-Type"},
		}},
	})
	if err != nil {
		return fmt.Errorf("failed to update bucket CORS: %v", err)
	}
	return nil
}

func (c *CloudStorageClient) SignedUploadURL(ctx context.Context, ownerID, fileName, mimeType string) (*service.UploadTicket, error) {
	if !allowedMimeTypes[mimeType] {
		return nil, errors.Validation(fmt.Sprintf("file type %s is not allowed", mimeType))
	}
	name := sanitizeFileName(fileName)
	if name == "" {
		return nil, errors.Validation("file name is required")
	}

	ref := service.AttachmentRefPrefix(ownerID) + uuid.New().String() + "/" + name
	expires := time.Now().Add(uploadURLExpiry)

	url, err := c.client.Bucket(c.bucketName).SignedURL(ref, &storage.SignedURLOptions{
		Scheme:      storage.SigningSchemeV4,
		Method:      http.MethodPut,
		ContentType: mimeType,
		Expires:     expires,
	})
	if err != nil {
		return nil, errors.Internal("Failed to generate upload URL", err)
	}

	return &service.UploadTicket{
		UploadURL:  url,
		StorageRef: ref,
		ExpiresAt:  expires,
	}, nil
}

func (c *CloudStorageClient) Describe(ctx context.Context, ref string) (*entity.Attachment, error) {
	attrs, err := c.client.Bucket(c.bucketName).Object(ref).Attrs(ctx)
	if err != nil {
		if stderrors.Is(err, storage.ErrObjectNotExist) {
			return nil, errors.NotFound("Attachment", err)
		}
		return nil, errors.Internal("Failed to read attachment", err)
	}

	return &entity.Attachment{
		Name:       path.Base(ref),
		StorageRef: ref,
		MimeType:   attrs.ContentType,
		SizeBytes:  attrs.Size,
	}, nil
}

func (c *CloudStorageClient) Close() error {
	return c.client.Close()
}

func sanitizeFileName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = strings.TrimSpace(path.Base(name))
	if name == "." || name == "/" {
		return ""
	}
	name = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, name)
	if len(name) > maxFileNameLen {
		ext := path.Ext(name)
		if len(ext) > 16 {
			ext = ""
		}
		name = name[:maxFileNameLen-len(ext)] + ext
	}
	return name
}
