package repository

import (
	"alcyxob/fight-gateway/internal/domain"
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Error constants for repository layer
var (
	ErrNotFound     = RepositoryError("not found")
	ErrUpdateFailed = RepositoryError("update failed")
)

// RepositoryError helps distinguish repository errors
type RepositoryError string

func (e RepositoryError) Error() string {
	return string(e)
}

// UploadRepository stores upload records. Status transitions only move forward:
// staged -> released or staged -> submitted.
type UploadRepository interface {
	Create(ctx context.Context, record *domain.UploadRecord) (primitive.ObjectID, error)
	GetByUploadID(ctx context.Context, uploadID string) (*domain.UploadRecord, error)
	// MarkReleased is a no-op (ErrNotFound) unless the record is still staged.
	MarkReleased(ctx context.Context, uploadID string, at time.Time) error
	MarkSubmitted(ctx context.Context, uploadID, analysisID string, at time.Time) error
	ListBySession(ctx context.Context, sessionID string, limit int64) ([]domain.UploadRecord, error)
}
