package gateway

import (
	"alcyxob/fight-gateway/internal/domain"
	"strconv"
)

const bytesPerMiB = 1024 * 1024

// FormatMiB renders a byte count in mebibytes with two decimals.
func FormatMiB(bytes int64) string {
	return strconv.FormatFloat(float64(bytes)/bytesPerMiB, 'f', 2, 64)
}

// Describe returns the display name and size of a staged upload.
func Describe(s *StagedUpload) domain.DisplayMetadata {
	return domain.DisplayMetadata{
		Name: "File: " + s.Name,
		Size: "Size: " + FormatMiB(s.Size) + " MB",
	}
}
