package domain

import "errors"

var (
	// ErrNotFound is returned when the requested resource does not exist.
	// Keeping this sentinel in domain allows adapters to map it consistently.
	ErrNotFound = errors.New("resource not found")
	// ErrPrimaryUnavailable signals that a write cannot be routed because the
	// primary backend failed its health check. Writes have no fallback target,
	// so the router surfaces this instead of degrading silently.
	ErrPrimaryUnavailable = errors.New("primary backend unavailable")
	// ErrNoHealthyBackend signals that no backend at all, primary included,
	// can serve the operation.
	ErrNoHealthyBackend = errors.New("no healthy backend available")
	// ErrInvalidConfig covers malformed startup configuration, such as a
	// backend set without exactly one primary.
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrConflict      = errors.New("conflict")
	ErrInvalidInput  = errors.New("invalid input")
)
