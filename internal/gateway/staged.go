package gateway

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

// Resource is whatever a Stager allocated for one upload.
type Resource interface {
	// Backend names the staging backend ("disk", "memory", "s3").
	Backend() string
	// Location is the temp path or object key, for logs and records only.
	Location() string
	Open(ctx context.Context) (io.ReadCloser, error)
	Release(ctx context.Context) error
}

// StagedUpload is an accepted candidate held in a transfer-ready state.
// Size always equals the number of bytes held by the resource.
type StagedUpload struct {
	ID          string
	SessionID   string
	Name        string
	ContentType string
	Size        int64
	StagedAt    time.Time

	resource Resource
	released atomic.Bool
	once     sync.Once
}

func (s *StagedUpload) Backend() string  { return s.resource.Backend() }
func (s *StagedUpload) Location() string { return s.resource.Location() }
func (s *StagedUpload) Released() bool   { return s.released.Load() }

// Open returns a reader over the staged bytes. It fails with ErrReleased once
// the upload has been released.
func (s *StagedUpload) Open(ctx context.Context) (io.ReadCloser, error) {
	if s.released.Load() {
		return nil, ErrReleased
	}
	return s.resource.Open(ctx)
}

// release frees the resource on the first call only. first reports whether this call did it.
func (s *StagedUpload) release(ctx context.Context) (first bool, err error) {
	s.once.Do(func() {
		first = true
		s.released.Store(true)
		err = s.resource.Release(ctx)
	})
	return first, err
}
