package gateway

import (
	"alcyxob/fight-gateway/internal/domain"
	"fmt"
	"path"
	"strings"
)

// Default policy values.
const (
	DefaultMaxBytes int64 = 500 * 1024 * 1024
)

var (
	DefaultAllowedTypes      = []string{"video/mp4", "video/quicktime", "video/x-msvideo"}
	DefaultAllowedExtensions = []string{"mp4", "mov", "avi"}
)

// Policy is the set of rules governing acceptance.
// Extensions are compared case-insensitively and may be given with or without the leading dot.
type Policy struct {
	MaxBytes          int64
	AllowedTypes      []string
	AllowedExtensions []string
}

// DefaultPolicy returns the built-in policy: 500 MiB, MP4/MOV/AVI.
func DefaultPolicy() Policy {
	return Policy{
		MaxBytes:          DefaultMaxBytes,
		AllowedTypes:      append([]string(nil), DefaultAllowedTypes...),
		AllowedExtensions: append([]string(nil), DefaultAllowedExtensions...),
	}
}

// Result is the outcome of Validate: either accepted (carrying the candidate) or rejected.
type Result struct {
	accepted  bool
	candidate domain.UploadCandidate
	rejection *Rejection
}

func accept(c domain.UploadCandidate) Result {
	return Result{accepted: true, candidate: c}
}

func reject(r *Rejection) Result {
	return Result{rejection: r}
}

func (r Result) Accepted() bool                    { return r.accepted }
func (r Result) Candidate() domain.UploadCandidate { return r.candidate }

// Rejection is nil for accepted results.
func (r Result) Rejection() *Rejection {
	return r.rejection
}

// Err returns the rejection as an error, or nil when accepted.
func (r Result) Err() error {
	if r.rejection == nil {
		return nil
	}
	return r.rejection
}

// Validate checks a candidate against the policy. Type is checked before size,
// so a candidate failing both is rejected as invalid_type. Content is never read.
func Validate(c domain.UploadCandidate, p Policy) Result {
	if !p.typeAllowed(c.ContentType) && !p.extensionAllowed(c.Name) {
		return reject(&Rejection{
			Reason:  ReasonInvalidType,
			Message: p.invalidTypeMessage(),
		})
	}
	if c.Size > p.MaxBytes {
		return reject(p.TooLarge())
	}
	return accept(c)
}

// TooLarge is the rejection for content exceeding MaxBytes. It is also used
// when a request body overruns the limit before the candidate is known.
func (p Policy) TooLarge() *Rejection {
	return &Rejection{
		Reason:  ReasonTooLarge,
		Message: fmt.Sprintf("File is too large. Maximum size is %s MB.", FormatMiB(p.MaxBytes)),
	}
}

// invalidTypeMessage lists the allowed extensions: "Please upload a valid video file (MP4, MOV, or AVI)."
func (p Policy) invalidTypeMessage() string {
	var names []string
	for _, e := range p.AllowedExtensions {
		if e = strings.TrimPrefix(strings.TrimSpace(e), "."); e != "" {
			names = append(names, strings.ToUpper(e))
		}
	}
	switch len(names) {
	case 0:
		return "Please upload a valid video file."
	case 1:
		return fmt.Sprintf("Please upload a valid video file (%s).", names[0])
	case 2:
		return fmt.Sprintf("Please upload a valid video file (%s or %s).", names[0], names[1])
	}
	last := len(names) - 1
	return fmt.Sprintf("Please upload a valid video file (%s, or %s).", strings.Join(names[:last], ", "), names[last])
}

func (p Policy) typeAllowed(contentType string) bool {
	mediaType := normalizeMediaType(contentType)
	if mediaType == "" {
		return false
	}
	for _, t := range p.AllowedTypes {
		if strings.EqualFold(strings.TrimSpace(t), mediaType) {
			return true
		}
	}
	return false
}

func (p Policy) extensionAllowed(name string) bool {
	ext := Extension(name)
	if ext == "" {
		return false
	}
	for _, e := range p.AllowedExtensions {
		if strings.EqualFold(strings.TrimPrefix(strings.TrimSpace(e), "."), ext) {
			return true
		}
	}
	return false
}

// normalizeMediaType drops parameters ("video/mp4; codecs=avc1") and lowercases.
func normalizeMediaType(contentType string) string {
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = contentType[:i]
	}
	return strings.ToLower(strings.TrimSpace(contentType))
}

// Extension returns the lowercase filename suffix without the dot ("clip.MOV" -> "mov").
func Extension(name string) string {
	// Browsers on Windows may send full paths.
	name = name[strings.LastIndexAny(name, `/\`)+1:]
	return strings.ToLower(strings.TrimPrefix(path.Ext(name), "."))
}
