package gateway

import "errors"

var (
	ErrInvalidType   = errors.New("invalid file type")
	ErrTooLarge      = errors.New("file too large")
	ErrStagingFailed = errors.New("staging failed")
	ErrNoCandidate   = errors.New("no candidate offered")

	ErrReleased      = errors.New("staged upload already released")
	ErrNothingStaged = errors.New("nothing staged")
	ErrSessionClosed = errors.New("session closed")
	ErrSizeMismatch  = errors.New("content length does not match declared size")
	ErrUnknownObject = errors.New("object was not issued to this session")
)

// Reason classifies a rejected candidate.
type Reason string

const (
	ReasonInvalidType   Reason = "invalid_type"
	ReasonTooLarge      Reason = "too_large"
	ReasonStagingFailed Reason = "staging_failed"
	ReasonNoCandidate   Reason = "no_candidate"
)

func (r Reason) sentinel() error {
	switch r {
	case ReasonInvalidType:
		return ErrInvalidType
	case ReasonTooLarge:
		return ErrTooLarge
	case ReasonStagingFailed:
		return ErrStagingFailed
	case ReasonNoCandidate:
		return ErrNoCandidate
	}
	return nil
}

// Rejection is the error carried by a rejected Result, and the error returned
// by Stage when staging fails. Message is safe to show to the user.
type Rejection struct {
	Reason  Reason
	Message string
	Err     error // underlying cause, staging failures only
}

func (r *Rejection) Error() string {
	if r.Err != nil {
		return r.Message + ": " + r.Err.Error()
	}
	return r.Message
}

// Is makes errors.Is(rej, ErrTooLarge) and friends work.
func (r *Rejection) Is(target error) bool {
	return target != nil && target == r.Reason.sentinel()
}

func (r *Rejection) Unwrap() error {
	return r.Err
}

func stagingFailed(err error) *Rejection {
	return &Rejection{
		Reason:  ReasonStagingFailed,
		Message: "The file could not be prepared for upload. Please try again.",
		Err:     err,
	}
}
