package gateway

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDescribe(t *testing.T) {
	staged := &StagedUpload{Name: "fight.mp4", Size: 50_000_000}

	first := Describe(staged)
	second := Describe(staged)

	assert.Equal(t, "File: fight.mp4", first.Name)
	assert.Equal(t, "Size: 47.68 MB", first.Size)
	assert.Equal(t, first, second)
}

func TestDescribeStagedUploadIsIdempotent(t *testing.T) {
	gw, _, _ := newTestGateway(t)
	staged, err := gw.Stage(context.Background(), gw.Validate(videoCandidate("bout.mp4", make([]byte, 3*1024*1024))))
	if err != nil {
		t.Fatalf("Stage: %v", err)
	}

	assert.Equal(t, gw.Describe(staged), gw.Describe(staged))
	assert.Equal(t, "Size: 3.00 MB", gw.Describe(staged).Size)
}

func TestFormatMiB(t *testing.T) {
	tests := []struct {
		bytes int64
		want  string
	}{
		{0, "0.00"},
		{1024 * 1024, "1.00"},
		{524288000, "500.00"},
		{10_000_000, "9.54"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatMiB(tt.bytes))
	}
}
