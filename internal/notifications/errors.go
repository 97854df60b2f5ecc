package notifications

import "errors"

// Repository errors.
var (
	ErrServiceNotFound = errors.New("service not found")
)

// Configuration errors.
var (
	ErrInvalidIntegration = errors.New("invalid service integration")
	ErrInvalidFilter      = errors.New("invalid notification filter")
)

// Worker errors.
var (
	ErrQueueFull     = errors.New("notification task queue is full")
	ErrWorkerStopped = errors.New("notification worker stopped")
)
