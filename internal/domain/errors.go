package domain

import "errors"

var ErrNotFound = errors.New("not found")
var ErrAlreadyExists = errors.New("already exists")

// Pipeline stage failures. A job that hits any of these is marked FAILED and
// is never retried automatically.
var (
	ErrUnreadableMedia    = errors.New("unreadable media")
	ErrConversionFailed   = errors.New("conversion failed")
	ErrSegmentationFailed = errors.New("segmentation failed")
)

// Playback lookup failures.
var (
	ErrManifestNotFound   = errors.New("manifest not found")
	ErrPositionOutOfRange = errors.New("position out of range")
	ErrInvalidPosition    = errors.New("invalid position")
)

var (
	ErrInvalidJobType    = errors.New("invalid job type")
	ErrInvalidTransition = errors.New("invalid job status transition")
)
