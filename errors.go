package backend

import (
	"errors"
	"fmt"
)

var (
	// Store errors.
	ErrNoStore     = errors.New("backend: no store configured")
	ErrStoreClosed = errors.New("backend: store closed")

	// ErrNotFound is wrapped by every entity not-found error, so callers
	// can test for the generic condition with errors.Is.
	ErrNotFound = errors.New("backend: not found")

	// Not found errors.
	ErrJobNotFound     = fmt.Errorf("backend: job %w", ErrNotFound)
	ErrWorkerNotFound  = fmt.Errorf("backend: worker %w", ErrNotFound)
	ErrDeviceNotFound  = fmt.Errorf("backend: device %w", ErrNotFound)
	ErrAccountNotFound = fmt.Errorf("backend: account %w", ErrNotFound)

	// Conflict errors.
	ErrJobAlreadyExists    = errors.New("backend: job already exists")
	ErrWorkerAlreadyExists = errors.New("backend: worker already exists")
)
