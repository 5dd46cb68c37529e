package domain

import (
	"io"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// UploadCandidate is a file offered by the user before it has been accepted or rejected.
// Size is the byte length declared up front; Content must yield exactly that many bytes.
type UploadCandidate struct {
	Name        string
	ContentType string
	Size        int64
	Content     io.Reader
}

// DisplayMetadata is the human-readable description of a staged upload.
type DisplayMetadata struct {
	Name string `json:"name"` // e.g. "File: fight.mp4"
	Size string `json:"size"` // e.g. "Size: 47.68 MB"
}

// UploadStatus tracks the lifecycle of an upload record.
type UploadStatus string

const (
	UploadStatusStaged    UploadStatus = "staged"
	UploadStatusReleased  UploadStatus = "released"
	UploadStatusSubmitted UploadStatus = "submitted"
)

// UploadRecord stores metadata about a staged upload. The bytes themselves live
// in the staging backend (temp file, memory or S3) and are never persisted here.
type UploadRecord struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UploadID    string             `bson:"uploadId" json:"uploadId"`   // StagedUpload ID (uuid)
	SessionID   string             `bson:"sessionId" json:"sessionId"` // User the session belongs to
	FileName    string             `bson:"fileName" json:"fileName"`
	ContentType string             `bson:"contentType" json:"contentType"`
	Size        int64              `bson:"size" json:"size"`
	Backend     string             `bson:"backend" json:"backend"` // "disk", "memory", "s3"
	Location    string             `bson:"location" json:"-"`      // Temp path or object key - internal use
	Status      UploadStatus       `bson:"status" json:"status"`
	AnalysisID  string             `bson:"analysisId,omitempty" json:"analysisId,omitempty"`
	StagedAt    time.Time          `bson:"stagedAt" json:"stagedAt"`
	ReleasedAt  *time.Time         `bson:"releasedAt,omitempty" json:"releasedAt,omitempty"`
	SubmittedAt *time.Time         `bson:"submittedAt,omitempty" json:"submittedAt,omitempty"`
}
