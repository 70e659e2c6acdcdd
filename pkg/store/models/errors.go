package models

import "errors"

// Domain errors returned by the store. Handlers translate these to wire
// statuses; nothing else leaks across the protocol surface.
var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("entity not found")

	// ErrAlreadyExists is returned on unique constraint violations.
	ErrAlreadyExists = errors.New("entity already exists")

	// ErrQuotaExceeded is returned when an admission would exceed a
	// configured capacity cap.
	ErrQuotaExceeded = errors.New("quota exceeded")
)
