package gateway

import (
	"alcyxob/fight-gateway/internal/domain"
	"alcyxob/fight-gateway/internal/logger"
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Observer is notified about staging lifecycle events. Staged fires when a
// session installs an upload; Released fires once per upload, on whichever
// path released it.
type Observer interface {
	Staged(ctx context.Context, s *StagedUpload)
	Released(ctx context.Context, s *StagedUpload)
}

type nopObserver struct{}

func (nopObserver) Staged(context.Context, *StagedUpload)   {}
func (nopObserver) Released(context.Context, *StagedUpload) {}

// Gateway ties a Policy to a Stager.
type Gateway struct {
	policy   Policy
	stager   Stager
	observer Observer
	log      logger.Logger
	now      func() time.Time
}

func New(policy Policy, stager Stager, log logger.Logger) *Gateway {
	return &Gateway{
		policy:   policy,
		stager:   stager,
		observer: nopObserver{},
		log:      log.With("component", "gateway"),
		now:      time.Now,
	}
}

// SetObserver must be called before the gateway is shared between goroutines.
func (g *Gateway) SetObserver(o Observer) {
	if o == nil {
		o = nopObserver{}
	}
	g.observer = o
}

func (g *Gateway) Policy() Policy { return g.policy }

func (g *Gateway) Validate(c domain.UploadCandidate) Result {
	return Validate(c, g.policy)
}

// Stage copies an accepted candidate into the stager. Calling it with a
// rejected Result is a programming error and panics. On failure the returned
// error is a *Rejection with ReasonStagingFailed and nothing stays allocated.
func (g *Gateway) Stage(ctx context.Context, r Result) (*StagedUpload, error) {
	return g.stage(ctx, "", r)
}

func (g *Gateway) stage(ctx context.Context, sessionID string, r Result) (*StagedUpload, error) {
	if !r.Accepted() {
		panic("gateway: Stage called with a rejected candidate")
	}
	c := r.Candidate()
	if c.Content == nil || c.Size < 0 {
		return nil, stagingFailed(errors.New("candidate has no readable content"))
	}

	id := uuid.NewString()
	res, err := g.stager.Stage(ctx, id, c)
	if err != nil {
		g.log.Warn("Staging failed", "uploadId", id, "session", sessionID, "file", c.Name, "error", err)
		return nil, stagingFailed(err)
	}

	return g.adopt(sessionID, id, c, res), nil
}

// adopt wraps a resource that already holds exactly c.Size bytes.
func (g *Gateway) adopt(sessionID, id string, c domain.UploadCandidate, res Resource) *StagedUpload {
	g.log.Debug("Staged upload", "uploadId", id, "session", sessionID, "backend", res.Backend(), "location", res.Location(), "size", c.Size)
	return &StagedUpload{
		ID:          id,
		SessionID:   sessionID,
		Name:        c.Name,
		ContentType: c.ContentType,
		Size:        c.Size,
		StagedAt:    g.now().UTC(),
		resource:    res,
	}
}

// Release frees the staged resource. Releasing twice, or releasing nil, is a
// no-op. Cancellation of ctx does not stop the release.
func (g *Gateway) Release(ctx context.Context, s *StagedUpload) error {
	if s == nil {
		return nil
	}
	ctx = context.WithoutCancel(ctx)
	first, err := s.release(ctx)
	if !first {
		return nil
	}
	if err != nil {
		g.log.Error("Failed to release staged upload", "uploadId", s.ID, "location", s.Location(), "error", err)
	} else {
		g.log.Debug("Released staged upload", "uploadId", s.ID)
	}
	g.observer.Released(ctx, s)
	return err
}

func (g *Gateway) Describe(s *StagedUpload) domain.DisplayMetadata {
	return Describe(s)
}
