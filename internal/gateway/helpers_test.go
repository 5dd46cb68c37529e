package gateway

import (
	"alcyxob/fight-gateway/internal/domain"
	"alcyxob/fight-gateway/internal/logger"
	"bytes"
	"context"
	"sync"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

const testStagingDir = "/staging"

type recordingObserver struct {
	mu       sync.Mutex
	staged   []string
	released map[string]int
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{released: make(map[string]int)}
}

func (o *recordingObserver) Staged(_ context.Context, s *StagedUpload) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.staged = append(o.staged, s.ID)
}

func (o *recordingObserver) Released(_ context.Context, s *StagedUpload) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.released[s.ID]++
}

func (o *recordingObserver) releaseCount(id string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.released[id]
}

func newTestGateway(t *testing.T) (*Gateway, afero.Fs, *recordingObserver) {
	t.Helper()
	fs := afero.NewMemMapFs()
	stager, err := NewFSStager(fs, testStagingDir, "memory")
	require.NoError(t, err)
	gw := New(DefaultPolicy(), stager, newTestLogger())
	obs := newRecordingObserver()
	gw.SetObserver(obs)
	return gw, fs, obs
}

func videoCandidate(name string, payload []byte) domain.UploadCandidate {
	return domain.UploadCandidate{
		Name:        name,
		ContentType: "video/mp4",
		Size:        int64(len(payload)),
		Content:     bytes.NewReader(payload),
	}
}

func stagedFiles(t *testing.T, fs afero.Fs) []string {
	t.Helper()
	infos, err := afero.ReadDir(fs, testStagingDir)
	require.NoError(t, err)
	names := make([]string, 0, len(infos))
	for _, fi := range infos {
		names = append(names, fi.Name())
	}
	return names
}

func newTestLogger() logger.Logger {
	return logger.NewNop()
}
