package models

import "errors"

// Admission errors are returned before a job record exists
var (
	ErrUnknownAgent      = errors.New("unknown agent")
	ErrInvalidParameters = errors.New("invalid parameters")
	ErrThrottled         = errors.New("agent concurrency limit reached")
	ErrCapacityExceeded  = errors.New("job store at capacity")
)

// Store errors
var (
	ErrNotFound          = errors.New("job not found")
	ErrInvalidTransition = errors.New("invalid status transition")
)
