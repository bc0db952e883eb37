// Package service provides business logic services for Harmonium.
package service

import "errors"

// Common service errors.
var (
	// Upload errors
	ErrEmptyUpload    = errors.New("upload content is empty")
	ErrUploadTooLarge = errors.New("upload exceeds the maximum file size")

	// Cascade errors
	ErrCascadeInProgress = errors.New("a deletion cascade for this library is already running")
	ErrCascadeAborted    = errors.New("cascade aborted after per-song failure")

	// General errors
	ErrInternalError = errors.New("internal server error")
)
