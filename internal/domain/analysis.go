package domain

import "time"

// AnalysisHandle is what the analysis backend hands back for an accepted submission.
// Status is opaque to the gateway.
type AnalysisHandle struct {
	ID          string    `json:"id"`
	Status      string    `json:"status,omitempty"`
	SubmittedAt time.Time `json:"submittedAt"`
}
