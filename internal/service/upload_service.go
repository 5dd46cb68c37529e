package service

import (
	"alcyxob/fight-gateway/internal/analysis"
	"alcyxob/fight-gateway/internal/domain"
	"alcyxob/fight-gateway/internal/gateway"
	"alcyxob/fight-gateway/internal/logger"
	"alcyxob/fight-gateway/internal/repository"
	"alcyxob/fight-gateway/internal/storage"
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

// --- Error Definitions ---
var (
	ErrNothingStaged           = errors.New("no file is staged")
	ErrAnalysisUnavailable     = errors.New("analysis backend is not configured")
	ErrAnalysisFailed          = errors.New("failed to submit file for analysis")
	ErrDirectUploadUnavailable = errors.New("direct uploads are not configured")
	ErrUploadURLError          = errors.New("failed to generate upload URL")
	ErrUnknownUpload           = errors.New("no upload URL was issued for this object")
	ErrUploadNotReceived       = errors.New("object has not been uploaded yet")
	ErrAlreadyConfirmed        = errors.New("upload was already confirmed")
)

const defaultHistoryLimit = 20

// UploadSummary is what callers see of a staged upload.
type UploadSummary struct {
	UploadID    string                 `json:"uploadId"`
	FileName    string                 `json:"fileName"`
	ContentType string                 `json:"contentType"`
	Size        int64                  `json:"size"`
	StagedAt    time.Time              `json:"stagedAt"`
	Display     domain.DisplayMetadata `json:"display"`
}

// UploadURLResponse structure for returning a presigned URL and its object key
type UploadURLResponse struct {
	UploadURL string `json:"uploadUrl"`
	ObjectKey string `json:"objectKey"`
	ExpiresIn int    `json:"expiresIn"` // seconds
}

type UploadService interface {
	// OfferUpload validates and stages the first candidate, replacing whatever the
	// session held. Returns gateway.ErrNoCandidate when nothing was offered and a
	// *gateway.Rejection when the candidate is rejected or cannot be staged.
	OfferUpload(ctx context.Context, sessionID string, candidates ...domain.UploadCandidate) (*UploadSummary, error)
	CurrentUpload(ctx context.Context, sessionID string) (*UploadSummary, error)
	DiscardUpload(ctx context.Context, sessionID string) error
	SubmitForAnalysis(ctx context.Context, sessionID string) (*domain.AnalysisHandle, error)

	// RequestUploadURL validates file metadata and returns a presigned PUT URL for
	// uploading straight to the bucket. The URL only accepts exactly size bytes.
	RequestUploadURL(ctx context.Context, sessionID, fileName, contentType string, size int64) (*UploadURLResponse, error)
	// ConfirmUpload checks an object uploaded through a presigned URL against the
	// policy and stages it in the session. Rejected objects are deleted.
	ConfirmUpload(ctx context.Context, sessionID, objectKey string) (*UploadSummary, error)
	ListUploads(ctx context.Context, sessionID string, limit int64) ([]domain.UploadRecord, error)

	Policy() gateway.Policy
}

// uploadService implements UploadService. It also observes the gateway so
// that every staging and release path updates the upload records.
type uploadService struct {
	sessions      *gateway.Manager
	uploadRepo    repository.UploadRepository
	fileStorage   storage.FileStorage // nil when S3 is not configured
	backend       analysis.Backend
	presignExpiry time.Duration
	log           logger.Logger
	now           func() time.Time
}

// NewUploadService creates the service and registers it as the gateway observer.
func NewUploadService(
	sessions *gateway.Manager,
	uploadRepo repository.UploadRepository,
	fileStorage storage.FileStorage,
	backend analysis.Backend,
	presignExpiry time.Duration,
	log logger.Logger,
) UploadService {
	if backend == nil {
		backend = analysis.Unconfigured{}
	}
	s := &uploadService{
		sessions:      sessions,
		uploadRepo:    uploadRepo,
		fileStorage:   fileStorage,
		backend:       backend,
		presignExpiry: presignExpiry,
		log:           log.With("component", "upload_service"),
		now:           time.Now,
	}
	sessions.Gateway().SetObserver(s)
	return s
}

// === Staging ===

func (s *uploadService) Policy() gateway.Policy {
	return s.sessions.Gateway().Policy()
}

func (s *uploadService) OfferUpload(ctx context.Context, sessionID string, candidates ...domain.UploadCandidate) (*UploadSummary, error) {
	staged, err := s.sessions.Session(sessionID).OnCandidateOffered(ctx, candidates...)
	if errors.Is(err, gateway.ErrSessionClosed) {
		// The reaper closed the session between lookup and use; a fresh one is created.
		staged, err = s.sessions.Session(sessionID).OnCandidateOffered(ctx, candidates...)
	}
	if err != nil {
		return nil, err
	}
	return summarize(staged), nil
}

func (s *uploadService) CurrentUpload(ctx context.Context, sessionID string) (*UploadSummary, error) {
	session, ok := s.sessions.Lookup(sessionID)
	if !ok {
		return nil, ErrNothingStaged
	}
	staged, ok := session.Current()
	if !ok {
		return nil, ErrNothingStaged
	}
	return summarize(staged), nil
}

func (s *uploadService) DiscardUpload(ctx context.Context, sessionID string) error {
	session, ok := s.sessions.Lookup(sessionID)
	if !ok {
		return nil
	}
	return session.Discard(ctx)
}

// === Analysis hand-off ===

// SubmitForAnalysis hands the staged upload to the backend. On failure the
// upload goes back into the session so the user can retry.
func (s *uploadService) SubmitForAnalysis(ctx context.Context, sessionID string) (*domain.AnalysisHandle, error) {
	session, ok := s.sessions.Lookup(sessionID)
	if !ok {
		return nil, ErrNothingStaged
	}
	staged, err := session.Take()
	if err != nil {
		return nil, ErrNothingStaged
	}

	handle, err := s.backend.SubmitForAnalysis(ctx, staged)
	if err != nil {
		session.Restore(ctx, staged)
		if errors.Is(err, analysis.ErrBackendNotConfigured) {
			return nil, ErrAnalysisUnavailable
		}
		s.log.Error("Analysis submission failed", "uploadId", staged.ID, "session", sessionID, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrAnalysisFailed, err)
	}
	if handle.SubmittedAt.IsZero() {
		handle.SubmittedAt = s.now().UTC()
	}

	if s.uploadRepo != nil {
		if err := s.uploadRepo.MarkSubmitted(ctx, staged.ID, handle.ID, handle.SubmittedAt); err != nil {
			s.log.Warn("Failed to mark upload submitted", "uploadId", staged.ID, "error", err)
		}
	}
	_ = s.sessions.Gateway().Release(ctx, staged)

	s.log.Info("Upload submitted for analysis", "uploadId", staged.ID, "analysisId", handle.ID, "session", sessionID)
	return &handle, nil
}

// === Direct upload ===

func (s *uploadService) RequestUploadURL(ctx context.Context, sessionID, fileName, contentType string, size int64) (*UploadURLResponse, error) {
	if s.fileStorage == nil {
		return nil, ErrDirectUploadUnavailable
	}
	result := s.sessions.Gateway().Validate(domain.UploadCandidate{Name: fileName, ContentType: contentType, Size: size})
	if !result.Accepted() {
		return nil, result.Rejection()
	}

	objectKey := path.Join("uploads", url.PathEscape(sessionID), uuid.NewString()+gateway.SafeSuffix(fileName))
	uploadURL, err := s.fileStorage.GeneratePresignedUploadURL(ctx, objectKey, contentType, size, s.presignExpiry)
	if err != nil {
		return nil, ErrUploadURLError
	}

	// Until confirmed, the object belongs to the session and goes away with it.
	object := gateway.NewObjectResource(s.fileStorage, objectKey)
	err = s.sessions.Session(sessionID).ExpectObject(fileName, size, object)
	if errors.Is(err, gateway.ErrSessionClosed) {
		err = s.sessions.Session(sessionID).ExpectObject(fileName, size, object)
	}
	if err != nil {
		return nil, err
	}

	expires := s.presignExpiry
	if expires <= 0 {
		expires = storage.DefaultPresignedURLExpiry
	}
	return &UploadURLResponse{
		UploadURL: uploadURL,
		ObjectKey: objectKey,
		ExpiresIn: int(expires.Seconds()),
	}, nil
}

func (s *uploadService) ConfirmUpload(ctx context.Context, sessionID, objectKey string) (*UploadSummary, error) {
	if s.fileStorage == nil {
		return nil, ErrDirectUploadUnavailable
	}
	session, ok := s.sessions.Lookup(sessionID)
	if !ok {
		return nil, ErrUnknownUpload
	}
	base := path.Base(objectKey)
	uploadID := strings.TrimSuffix(base, path.Ext(base))

	if s.uploadRepo != nil {
		record, err := s.uploadRepo.GetByUploadID(ctx, uploadID)
		switch {
		case err == nil && record.SessionID == sessionID:
			return nil, ErrAlreadyConfirmed
		case err != nil && !errors.Is(err, repository.ErrNotFound):
			s.log.Warn("Failed to look up upload record", "uploadId", uploadID, "error", err)
		}
	}

	info, err := s.fileStorage.StatObject(ctx, objectKey)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, ErrUploadNotReceived
		}
		return nil, fmt.Errorf("stat uploaded object: %w", err)
	}

	staged, err := session.OnObjectUploaded(ctx, uploadID, objectKey, info.ContentType, info.Size)
	if errors.Is(err, gateway.ErrUnknownObject) || errors.Is(err, gateway.ErrSessionClosed) {
		return nil, ErrUnknownUpload
	}
	if err != nil {
		return nil, err
	}
	s.log.Info("Direct upload confirmed", "uploadId", uploadID, "session", sessionID, "size", info.Size)
	return summarize(staged), nil
}

// === History ===

func (s *uploadService) ListUploads(ctx context.Context, sessionID string, limit int64) ([]domain.UploadRecord, error) {
	if s.uploadRepo == nil {
		return []domain.UploadRecord{}, nil
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	records, err := s.uploadRepo.ListBySession(ctx, sessionID, limit)
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []domain.UploadRecord{}
	}
	return records, nil
}

// === gateway.Observer ===

// Staged records a newly staged upload. Record failures never fail the upload.
func (s *uploadService) Staged(ctx context.Context, staged *gateway.StagedUpload) {
	if s.uploadRepo == nil {
		return
	}
	record := &domain.UploadRecord{
		UploadID:    staged.ID,
		SessionID:   staged.SessionID,
		FileName:    staged.Name,
		ContentType: staged.ContentType,
		Size:        staged.Size,
		Backend:     staged.Backend(),
		Location:    staged.Location(),
		Status:      domain.UploadStatusStaged,
		StagedAt:    staged.StagedAt,
	}
	if _, err := s.uploadRepo.Create(ctx, record); err != nil {
		s.log.Warn("Failed to record staged upload", "uploadId", staged.ID, "error", err)
	}
}

// Released marks the record released unless it was already submitted.
func (s *uploadService) Released(ctx context.Context, staged *gateway.StagedUpload) {
	if s.uploadRepo == nil {
		return
	}
	err := s.uploadRepo.MarkReleased(ctx, staged.ID, s.now())
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		s.log.Warn("Failed to mark upload released", "uploadId", staged.ID, "error", err)
	}
}

func summarize(staged *gateway.StagedUpload) *UploadSummary {
	return &UploadSummary{
		UploadID:    staged.ID,
		FileName:    staged.Name,
		ContentType: staged.ContentType,
		Size:        staged.Size,
		StagedAt:    staged.StagedAt,
		Display:     gateway.Describe(staged),
	}
}
