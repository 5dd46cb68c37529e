package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

// Default expiry duration for presigned URLs
const DefaultPresignedURLExpiry = 15 * time.Minute

var ErrObjectNotFound = errors.New("object not found in storage")

// ObjectInfo is what the provider reports about a stored object.
type ObjectInfo struct {
	Size        int64
	ContentType string
}

// FileStorage defines the interface for object storage operations.
type FileStorage interface {
	// PutObject streams size bytes from body into objectKey.
	PutObject(ctx context.Context, objectKey string, body io.Reader, size int64, contentType string) error

	// GetObject opens objectKey for reading. Returns ErrObjectNotFound when the key does not exist.
	GetObject(ctx context.Context, objectKey string) (io.ReadCloser, error)

	// StatObject reports size and content type without reading the object.
	// Returns ErrObjectNotFound when the key does not exist.
	StatObject(ctx context.Context, objectKey string) (ObjectInfo, error)

	// DeleteObject removes an object from the storage provider.
	DeleteObject(ctx context.Context, objectKey string) error

	// GeneratePresignedUploadURL creates a temporary URL that allows PUT requests
	// for uploading an object directly to the storage provider. A positive size is
	// signed into the URL, so the upload must carry exactly that Content-Length.
	GeneratePresignedUploadURL(ctx context.Context, objectKey string, contentType string, size int64, expires time.Duration) (string, error)
}
