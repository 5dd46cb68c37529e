package gateway

import (
	"alcyxob/fight-gateway/internal/domain"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// State of a Session.
type State int

const (
	StateEmpty State = iota
	StateStaged
)

func (s State) String() string {
	if s == StateStaged {
		return "staged"
	}
	return "empty"
}

// Session holds at most one StagedUpload for one user. Transitions are
// Empty -> Staged (a candidate is accepted) and Staged -> Empty (discard, take,
// close). Staged -> Staged replaces the upload and releases the old one.
//
// The mutex is never held while bytes are copied, so a large upload does not
// block readers of the session or the idle reaper.
type Session struct {
	id string
	gw *Gateway

	mu         sync.Mutex
	current    *StagedUpload
	expected   map[string]expectedObject // presigned object keys not yet confirmed
	lastActive time.Time
	staging    int // offers currently copying bytes
	closed     bool
}

type expectedObject struct {
	name     string
	size     int64
	resource Resource
}

func NewSession(id string, gw *Gateway) *Session {
	return &Session{id: id, gw: gw, lastActive: gw.now()}
}

func (s *Session) ID() string { return s.id }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return StateEmpty
	}
	return StateStaged
}

// OnCandidateOffered is the single ingress for a file-selection event. Only the
// first candidate is considered. No candidates yields ErrNoCandidate, which
// callers should ignore. A rejected candidate returns its *Rejection and leaves
// the current upload in place.
func (s *Session) OnCandidateOffered(ctx context.Context, candidates ...domain.UploadCandidate) (*StagedUpload, error) {
	if len(candidates) == 0 {
		return nil, ErrNoCandidate
	}
	result := s.gw.Validate(candidates[0])
	if !result.Accepted() {
		return nil, result.Rejection()
	}

	if err := s.beginStaging(); err != nil {
		return nil, err
	}
	staged, err := s.gw.stage(ctx, s.id, result)
	if err != nil {
		s.endStaging()
		return nil, err
	}
	return s.install(ctx, staged)
}

// ExpectObject registers an object a client was given a presigned URL for,
// declared as name with size bytes. It is deleted on Close unless
// OnObjectUploaded adopts it first.
func (s *Session) ExpectObject(name string, size int64, res Resource) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	if s.expected == nil {
		s.expected = make(map[string]expectedObject)
	}
	s.expected[res.Location()] = expectedObject{name: name, size: size, resource: res}
	s.lastActive = s.gw.now()
	return nil
}

// OnObjectUploaded validates an expected object as stored (size and type as
// reported by the provider) and stages it in place, replacing the current
// upload. A rejected object, or one whose size differs from the declared size,
// is deleted. Keys this session did not issue fail with ErrUnknownObject and
// are left alone.
func (s *Session) OnObjectUploaded(ctx context.Context, id, key, contentType string, size int64) (*StagedUpload, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrSessionClosed
	}
	exp, ok := s.expected[key]
	if !ok {
		s.mu.Unlock()
		return nil, ErrUnknownObject
	}
	delete(s.expected, key)
	s.staging++
	s.lastActive = s.gw.now()
	s.mu.Unlock()

	c := domain.UploadCandidate{Name: exp.name, ContentType: contentType, Size: size}
	result := s.gw.Validate(c)
	if !result.Accepted() {
		s.endStaging()
		s.releaseResource(ctx, exp.resource)
		return nil, result.Rejection()
	}
	if size != exp.size {
		s.endStaging()
		s.releaseResource(ctx, exp.resource)
		return nil, stagingFailed(fmt.Errorf("%w: declared %d bytes, stored %d", ErrSizeMismatch, exp.size, size))
	}
	return s.install(ctx, s.gw.adopt(s.id, id, c, exp.resource))
}

func (s *Session) beginStaging() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	s.staging++
	s.lastActive = s.gw.now()
	return nil
}

func (s *Session) endStaging() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.staging--
	s.lastActive = s.gw.now()
}

// install makes staged current and releases the previous upload. It ends the
// staging begun by the caller.
func (s *Session) install(ctx context.Context, staged *StagedUpload) (*StagedUpload, error) {
	s.mu.Lock()
	s.staging--
	s.lastActive = s.gw.now()
	if s.closed {
		// Closed at shutdown while the bytes were being copied.
		s.mu.Unlock()
		_ = s.gw.Release(ctx, staged)
		return nil, ErrSessionClosed
	}
	previous := s.current
	s.current = staged
	s.gw.observer.Staged(ctx, staged)
	s.mu.Unlock()

	_ = s.gw.Release(ctx, previous)
	return staged, nil
}

// Current returns the staged upload, if any.
func (s *Session) Current() (*StagedUpload, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActive = s.gw.now()
	return s.current, s.current != nil
}

// Discard releases the current upload. Discarding an empty session is a no-op.
func (s *Session) Discard(ctx context.Context) error {
	s.mu.Lock()
	s.lastActive = s.gw.now()
	current := s.current
	s.current = nil
	s.mu.Unlock()
	return s.gw.Release(ctx, current)
}

// Take removes the current upload from the session without releasing it; the
// caller becomes responsible for releasing it (or handing it back via Restore).
func (s *Session) Take() (*StagedUpload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil, ErrNothingStaged
	}
	s.lastActive = s.gw.now()
	taken := s.current
	s.current = nil
	return taken, nil
}

// Restore puts a taken upload back. If the session has been closed or a newer
// upload was staged meanwhile, the upload is released instead and false is returned.
func (s *Session) Restore(ctx context.Context, staged *StagedUpload) bool {
	s.mu.Lock()
	if s.closed || s.current != nil || staged.Released() {
		s.mu.Unlock()
		_ = s.gw.Release(ctx, staged)
		return false
	}
	s.current = staged
	s.lastActive = s.gw.now()
	s.mu.Unlock()
	return true
}

// Close ends the session, releasing whatever is staged or still expected.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	return s.closeLocked(ctx)
}

// closeIfIdle closes the session if nothing is being staged and it has not been
// used since cutoff. The check and the close happen under one lock, so an offer
// either sees the session closed or keeps it alive.
func (s *Session) closeIfIdle(ctx context.Context, cutoff time.Time) (bool, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return true, nil
	}
	if s.staging > 0 || !s.lastActive.Before(cutoff) {
		s.mu.Unlock()
		return false, nil
	}
	return true, s.closeLocked(ctx)
}

// closeLocked marks the session closed and releases its resources after
// unlocking s.mu, which the caller must hold.
func (s *Session) closeLocked(ctx context.Context) error {
	s.closed = true
	current := s.current
	s.current = nil
	expected := s.expected
	s.expected = nil
	s.mu.Unlock()

	err := s.gw.Release(ctx, current)
	for _, exp := range expected {
		if relErr := s.releaseResource(ctx, exp.resource); relErr != nil {
			err = errors.Join(err, relErr)
		}
	}
	return err
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// releaseResource frees a resource that never became a StagedUpload.
func (s *Session) releaseResource(ctx context.Context, res Resource) error {
	err := res.Release(context.WithoutCancel(ctx))
	if err != nil {
		s.gw.log.Warn("Failed to release unconfirmed object", "session", s.id, "location", res.Location(), "error", err)
	}
	return err
}
