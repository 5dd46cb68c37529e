package gateway

import (
	"alcyxob/fight-gateway/internal/config"
	"alcyxob/fight-gateway/internal/domain"
	"alcyxob/fight-gateway/internal/storage"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"time"
)

const cleanupTimeout = 30 * time.Second

// ObjectStager stages uploads as objects in S3-compatible storage under prefix.
type ObjectStager struct {
	store  storage.FileStorage
	prefix string
}

func NewObjectStager(store storage.FileStorage, prefix string) *ObjectStager {
	if prefix == "" {
		prefix = "staging"
	}
	return &ObjectStager{store: store, prefix: prefix}
}

func (s *ObjectStager) Stage(ctx context.Context, id string, c domain.UploadCandidate) (Resource, error) {
	key := path.Join(s.prefix, id+SafeSuffix(c.Name))
	body, err := exactBody(ctx, c.Content, c.Size)
	if err != nil {
		return nil, fmt.Errorf("prepare %q: %w", key, err)
	}
	if err = s.store.PutObject(ctx, key, body, c.Size, c.ContentType); err != nil {
		// A failed multipart or interrupted PUT may still have left an object behind.
		cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
		defer cancel()
		_ = s.store.DeleteObject(cleanupCtx, key)
		return nil, fmt.Errorf("put object %q: %w", key, err)
	}
	return NewObjectResource(s.store, key), nil
}

// NewObjectResource wraps an object that already exists under key, such as one
// uploaded through a presigned URL. Releasing it deletes the object.
func NewObjectResource(store storage.FileStorage, key string) Resource {
	return &objectResource{store: store, key: key}
}

type objectResource struct {
	store storage.FileStorage
	key   string
}

func (r *objectResource) Backend() string  { return config.StagingBackendS3 }
func (r *objectResource) Location() string { return r.key }

func (r *objectResource) Open(ctx context.Context) (io.ReadCloser, error) {
	return r.store.GetObject(ctx, r.key)
}

func (r *objectResource) Release(ctx context.Context) error {
	if err := r.store.DeleteObject(ctx, r.key); err != nil && !errors.Is(err, storage.ErrObjectNotFound) {
		return err
	}
	return nil
}
