// Package analysis declares the hand-off contract to the vision pipeline that
// scores staged fight footage. The pipeline itself lives elsewhere.
package analysis

import (
	"alcyxob/fight-gateway/internal/domain"
	"alcyxob/fight-gateway/internal/gateway"
	"context"
	"errors"
)

var ErrBackendNotConfigured = errors.New("analysis backend is not configured")

// Backend accepts a staged upload for analysis. Implementations must finish
// reading (or copying) the upload's bytes before returning: the gateway
// releases the staged resource right after a successful submission.
type Backend interface {
	SubmitForAnalysis(ctx context.Context, staged *gateway.StagedUpload) (domain.AnalysisHandle, error)
}

// BackendFunc adapts a function to Backend.
type BackendFunc func(ctx context.Context, staged *gateway.StagedUpload) (domain.AnalysisHandle, error)

func (f BackendFunc) SubmitForAnalysis(ctx context.Context, staged *gateway.StagedUpload) (domain.AnalysisHandle, error) {
	return f(ctx, staged)
}

// Unconfigured is the default Backend until a real pipeline is wired in.
type Unconfigured struct{}

func (Unconfigured) SubmitForAnalysis(context.Context, *gateway.StagedUpload) (domain.AnalysisHandle, error) {
	return domain.AnalysisHandle{}, ErrBackendNotConfigured
}
