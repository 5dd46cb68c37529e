package service

import (
	"alcyxob/fight-gateway/internal/analysis"
	"alcyxob/fight-gateway/internal/domain"
	"alcyxob/fight-gateway/internal/gateway"
	"alcyxob/fight-gateway/internal/logger"
	"alcyxob/fight-gateway/internal/repository"
	"alcyxob/fight-gateway/internal/storage"
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// fakeUploadRepo is an in-memory repository.UploadRepository.
type fakeUploadRepo struct {
	mu      sync.Mutex
	records map[string]*domain.UploadRecord
	order   []string
}

func newFakeUploadRepo() *fakeUploadRepo {
	return &fakeUploadRepo{records: make(map[string]*domain.UploadRecord)}
}

func (r *fakeUploadRepo) Create(_ context.Context, record *domain.UploadRecord) (primitive.ObjectID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	record.ID = primitive.NewObjectID()
	copied := *record
	r.records[record.UploadID] = &copied
	r.order = append(r.order, record.UploadID)
	return record.ID, nil
}

func (r *fakeUploadRepo) GetByUploadID(_ context.Context, uploadID string) (*domain.UploadRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[uploadID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *rec
	return &copied, nil
}

func (r *fakeUploadRepo) MarkReleased(_ context.Context, uploadID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[uploadID]
	if !ok || rec.Status != domain.UploadStatusStaged {
		return repository.ErrNotFound
	}
	rec.Status = domain.UploadStatusReleased
	rec.ReleasedAt = &at
	return nil
}

func (r *fakeUploadRepo) MarkSubmitted(_ context.Context, uploadID, analysisID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[uploadID]
	if !ok || rec.Status != domain.UploadStatusStaged {
		return repository.ErrNotFound
	}
	rec.Status = domain.UploadStatusSubmitted
	rec.AnalysisID = analysisID
	rec.SubmittedAt = &at
	return nil
}

func (r *fakeUploadRepo) ListBySession(_ context.Context, sessionID string, limit int64) ([]domain.UploadRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.UploadRecord
	for i := len(r.order) - 1; i >= 0 && int64(len(out)) < limit; i-- {
		if rec := r.records[r.order[i]]; rec.SessionID == sessionID {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func (r *fakeUploadRepo) status(uploadID string) domain.UploadStatus {
	rec, err := r.GetByUploadID(context.Background(), uploadID)
	if err != nil {
		return ""
	}
	return rec.Status
}

func newTestService(t *testing.T, backend analysis.Backend) (UploadService, *fakeUploadRepo, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	stager, err := gateway.NewFSStager(fs, "/staging", "memory")
	require.NoError(t, err)
	gw := gateway.New(gateway.DefaultPolicy(), stager, logger.NewNop())
	repo := newFakeUploadRepo()
	svc := NewUploadService(gateway.NewManager(gw, time.Hour), repo, nil, backend, 0, logger.NewNop())
	return svc, repo, fs
}

func mp4(name, body string) domain.UploadCandidate {
	return domain.UploadCandidate{Name: name, ContentType: "video/mp4", Size: int64(len(body)), Content: strings.NewReader(body)}
}

func TestOfferUploadRecordsAndReplaces(t *testing.T) {
	svc, repo, fs := newTestService(t, nil)
	ctx := context.Background()

	first, err := svc.OfferUpload(ctx, "judge-1", mp4("fight.mp4", "round 1"))
	require.NoError(t, err)
	assert.Equal(t, "File: fight.mp4", first.Display.Name)
	assert.Equal(t, domain.UploadStatusStaged, repo.status(first.UploadID))

	second, err := svc.OfferUpload(ctx, "judge-1", mp4("fight2.mp4", "round 2"))
	require.NoError(t, err)

	assert.Equal(t, domain.UploadStatusReleased, repo.status(first.UploadID))
	assert.Equal(t, domain.UploadStatusStaged, repo.status(second.UploadID))

	current, err := svc.CurrentUpload(ctx, "judge-1")
	require.NoError(t, err)
	assert.Equal(t, second.UploadID, current.UploadID)

	files, err := afero.ReadDir(fs, "/staging")
	require.NoError(t, err)
	assert.Len(t, files, 1)
}

func TestOfferUploadErrors(t *testing.T) {
	svc, repo, _ := newTestService(t, nil)
	ctx := context.Background()

	_, err := svc.OfferUpload(ctx, "judge-1")
	assert.ErrorIs(t, err, gateway.ErrNoCandidate)

	_, err = svc.OfferUpload(ctx, "judge-1", domain.UploadCandidate{Name: "fight.mkv", ContentType: "video/x-matroska", Size: 1_000_000})
	assert.ErrorIs(t, err, gateway.ErrInvalidType)

	_, err = svc.OfferUpload(ctx, "judge-1", domain.UploadCandidate{Name: "fight.mp4", ContentType: "video/mp4", Size: 600_000_000})
	assert.ErrorIs(t, err, gateway.ErrTooLarge)

	assert.Empty(t, repo.records)
	_, err = svc.CurrentUpload(ctx, "judge-1")
	assert.ErrorIs(t, err, ErrNothingStaged)
}

func TestDiscardUpload(t *testing.T) {
	svc, repo, _ := newTestService(t, nil)
	ctx := context.Background()

	require.NoError(t, svc.DiscardUpload(ctx, "nobody"))

	staged, err := svc.OfferUpload(ctx, "judge-1", mp4("fight.mp4", "bytes"))
	require.NoError(t, err)
	require.NoError(t, svc.DiscardUpload(ctx, "judge-1"))

	assert.Equal(t, domain.UploadStatusReleased, repo.status(staged.UploadID))
	_, err = svc.CurrentUpload(ctx, "judge-1")
	assert.ErrorIs(t, err, ErrNothingStaged)
}

func TestSubmitForAnalysis(t *testing.T) {
	var received []byte
	backend := analysis.BackendFunc(func(ctx context.Context, staged *gateway.StagedUpload) (domain.AnalysisHandle, error) {
		rc, err := staged.Open(ctx)
		if err != nil {
			return domain.AnalysisHandle{}, err
		}
		defer rc.Close()
		received, err = io.ReadAll(rc)
		return domain.AnalysisHandle{ID: "analysis-42", Status: "queued"}, err
	})
	svc, repo, fs := newTestService(t, backend)
	ctx := context.Background()

	staged, err := svc.OfferUpload(ctx, "judge-1", mp4("fight.mp4", "full bout"))
	require.NoError(t, err)

	handle, err := svc.SubmitForAnalysis(ctx, "judge-1")
	require.NoError(t, err)

	assert.Equal(t, "analysis-42", handle.ID)
	assert.False(t, handle.SubmittedAt.IsZero())
	assert.True(t, bytes.Equal([]byte("full bout"), received))
	assert.Equal(t, domain.UploadStatusSubmitted, repo.status(staged.UploadID))

	files, err := afero.ReadDir(fs, "/staging")
	require.NoError(t, err)
	assert.Empty(t, files)

	_, err = svc.SubmitForAnalysis(ctx, "judge-1")
	assert.ErrorIs(t, err, ErrNothingStaged)
}

func TestSubmitForAnalysisFailureKeepsUploadStaged(t *testing.T) {
	tests := []struct {
		name    string
		backend analysis.Backend
		wantErr error
	}{
		{"unconfigured", analysis.Unconfigured{}, ErrAnalysisUnavailable},
		{"backend error", analysis.BackendFunc(func(context.Context, *gateway.StagedUpload) (domain.AnalysisHandle, error) {
			return domain.AnalysisHandle{}, errors.New("pipeline down")
		}), ErrAnalysisFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, repo, _ := newTestService(t, tt.backend)
			ctx := context.Background()

			staged, err := svc.OfferUpload(ctx, "judge-1", mp4("fight.mp4", "bout"))
			require.NoError(t, err)

			_, err = svc.SubmitForAnalysis(ctx, "judge-1")
			assert.ErrorIs(t, err, tt.wantErr)

			current, err := svc.CurrentUpload(ctx, "judge-1")
			require.NoError(t, err)
			assert.Equal(t, staged.UploadID, current.UploadID)
			assert.Equal(t, domain.UploadStatusStaged, repo.status(staged.UploadID))
		})
	}
}

func TestRequestUploadURLUnavailableWithoutStorage(t *testing.T) {
	svc, _, _ := newTestService(t, nil)

	_, err := svc.RequestUploadURL(context.Background(), "judge-1", "fight.mp4", "video/mp4", 10)
	assert.ErrorIs(t, err, ErrDirectUploadUnavailable)

	_, err = svc.ConfirmUpload(context.Background(), "judge-1", "uploads/judge-1/x.mp4")
	assert.ErrorIs(t, err, ErrDirectUploadUnavailable)
}

// memObjectStore stands in for the bucket a client uploads to directly.
type memObjectStore struct {
	mu      sync.Mutex
	objects map[string]storage.ObjectInfo
	keys    []string
	sizes   []int64
	expires time.Duration
}

func newMemObjectStore() *memObjectStore {
	return &memObjectStore{objects: make(map[string]storage.ObjectInfo)}
}

// upload simulates the client's PUT to a presigned URL.
func (m *memObjectStore) upload(key, contentType string, size int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = storage.ObjectInfo{Size: size, ContentType: contentType}
}

func (m *memObjectStore) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	return ok
}

func (m *memObjectStore) PutObject(_ context.Context, key string, body io.Reader, _ int64, contentType string) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	m.upload(key, contentType, int64(len(data)))
	return nil
}

func (m *memObjectStore) GetObject(context.Context, string) (io.ReadCloser, error) {
	return nil, errors.New("not readable")
}

func (m *memObjectStore) StatObject(_ context.Context, key string) (storage.ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	info, ok := m.objects[key]
	if !ok {
		return storage.ObjectInfo{}, storage.ErrObjectNotFound
	}
	return info, nil
}

func (m *memObjectStore) DeleteObject(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *memObjectStore) GeneratePresignedUploadURL(_ context.Context, key, _ string, size int64, expires time.Duration) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys = append(m.keys, key)
	m.sizes = append(m.sizes, size)
	m.expires = expires
	return "https://bucket.example/" + key, nil
}

func newDirectUploadService(t *testing.T, repo repository.UploadRepository) (UploadService, *memObjectStore) {
	t.Helper()
	stager, err := gateway.NewFSStager(afero.NewMemMapFs(), "/staging", "memory")
	require.NoError(t, err)
	policy := gateway.DefaultPolicy()
	policy.MaxBytes = 4096
	gw := gateway.New(policy, stager, logger.NewNop())
	store := newMemObjectStore()
	return NewUploadService(gateway.NewManager(gw, time.Hour), repo, store, nil, 0, logger.NewNop()), store
}

func TestRequestUploadURL(t *testing.T) {
	svc, store := newDirectUploadService(t, nil)
	ctx := context.Background()

	resp, err := svc.RequestUploadURL(ctx, "judge 1", "Fight.MOV", "", 1024)
	require.NoError(t, err)
	require.Len(t, store.keys, 1)
	assert.Equal(t, store.keys[0], resp.ObjectKey)
	assert.Equal(t, []int64{1024}, store.sizes)
	assert.True(t, strings.HasPrefix(resp.ObjectKey, "uploads/judge%201/"), resp.ObjectKey)
	assert.True(t, strings.HasSuffix(resp.ObjectKey, ".mov"), resp.ObjectKey)
	assert.Equal(t, "https://bucket.example/"+resp.ObjectKey, resp.UploadURL)
	assert.Equal(t, int(storage.DefaultPresignedURLExpiry.Seconds()), resp.ExpiresIn)

	_, err = svc.RequestUploadURL(ctx, "judge-1", "fight.mkv", "video/x-matroska", 10)
	assert.ErrorIs(t, err, gateway.ErrInvalidType)
	_, err = svc.RequestUploadURL(ctx, "judge-1", "fight.mp4", "video/mp4", 5000)
	assert.ErrorIs(t, err, gateway.ErrTooLarge)
	assert.Len(t, store.keys, 1)
}

func TestConfirmUpload(t *testing.T) {
	repo := newFakeUploadRepo()
	svc, store := newDirectUploadService(t, repo)
	ctx := context.Background()

	_, err := svc.ConfirmUpload(ctx, "judge-1", "uploads/judge-1/unknown.mp4")
	assert.ErrorIs(t, err, ErrUnknownUpload)

	resp, err := svc.RequestUploadURL(ctx, "judge-1", "bout.mp4", "video/mp4", 100)
	require.NoError(t, err)

	_, err = svc.ConfirmUpload(ctx, "judge-1", resp.ObjectKey)
	assert.ErrorIs(t, err, ErrUploadNotReceived)

	// Another user cannot claim the object.
	store.upload(resp.ObjectKey, "video/mp4", 100)
	_, err = svc.ConfirmUpload(ctx, "judge-2", resp.ObjectKey)
	assert.ErrorIs(t, err, ErrUnknownUpload)

	summary, err := svc.ConfirmUpload(ctx, "judge-1", resp.ObjectKey)
	require.NoError(t, err)
	assert.Equal(t, "bout.mp4", summary.FileName)
	assert.Equal(t, int64(100), summary.Size)
	assert.True(t, strings.HasSuffix(resp.ObjectKey, summary.UploadID+".mp4"))

	record, err := repo.GetByUploadID(ctx, summary.UploadID)
	require.NoError(t, err)
	assert.Equal(t, domain.UploadStatusStaged, record.Status)
	assert.Equal(t, "s3", record.Backend)
	assert.Equal(t, resp.ObjectKey, record.Location)

	current, err := svc.CurrentUpload(ctx, "judge-1")
	require.NoError(t, err)
	assert.Equal(t, summary.UploadID, current.UploadID)

	_, err = svc.ConfirmUpload(ctx, "judge-1", resp.ObjectKey)
	assert.ErrorIs(t, err, ErrAlreadyConfirmed)

	// Discarding the adopted upload deletes the object.
	require.NoError(t, svc.DiscardUpload(ctx, "judge-1"))
	assert.False(t, store.has(resp.ObjectKey))
	assert.Equal(t, domain.UploadStatusReleased, repo.status(summary.UploadID))
}

func TestConfirmUploadRejectsStoredObject(t *testing.T) {
	svc, store := newDirectUploadService(t, newFakeUploadRepo())
	ctx := context.Background()

	resp, err := svc.RequestUploadURL(ctx, "judge-1", "bout.mp4", "video/mp4", 100)
	require.NoError(t, err)
	store.upload(resp.ObjectKey, "video/mp4", 8192)

	_, err = svc.ConfirmUpload(ctx, "judge-1", resp.ObjectKey)

	var rej *gateway.Rejection
	require.True(t, errors.As(err, &rej))
	assert.Equal(t, gateway.ReasonTooLarge, rej.Reason)
	assert.False(t, store.has(resp.ObjectKey))
	_, err = svc.CurrentUpload(ctx, "judge-1")
	assert.ErrorIs(t, err, ErrNothingStaged)
}

func TestClosedSessionDeletesUnconfirmedObjects(t *testing.T) {
	svc, store := newDirectUploadService(t, nil)
	ctx := context.Background()

	resp, err := svc.RequestUploadURL(ctx, "judge-1", "bout.mp4", "video/mp4", 100)
	require.NoError(t, err)
	store.upload(resp.ObjectKey, "video/mp4", 100)

	svc.(*uploadService).sessions.CloseAll(ctx)

	assert.False(t, store.has(resp.ObjectKey))
}

func TestListUploads(t *testing.T) {
	svc, _, _ := newTestService(t, nil)
	ctx := context.Background()

	empty, err := svc.ListUploads(ctx, "judge-1", 0)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	_, err = svc.OfferUpload(ctx, "judge-1", mp4("a.mp4", "a"))
	require.NoError(t, err)
	_, err = svc.OfferUpload(ctx, "judge-1", mp4("b.mp4", "b"))
	require.NoError(t, err)
	_, err = svc.OfferUpload(ctx, "judge-2", mp4("c.mp4", "c"))
	require.NoError(t, err)

	records, err := svc.ListUploads(ctx, "judge-1", 0)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "b.mp4", records[0].FileName)
	assert.Equal(t, domain.UploadStatusStaged, records[0].Status)
	assert.Equal(t, domain.UploadStatusReleased, records[1].Status)
}
