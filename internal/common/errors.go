// Package common defines shared constants and sentinel errors used across
// dropvault components. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Validation / input errors. Rejected before any state mutation.
	ErrValidation = errors.New("validation error")

	// Repository-level errors.
	// ErrNotFound also covers "exists but owned by someone else":
	// ownership mismatches are indistinguishable from absence on purpose.
	ErrNotFound = errors.New("not found")

	// Access errors.
	ErrUnauthorized     = errors.New("unauthorized")
	ErrPasswordRequired = errors.New("password required")

	// Lifecycle errors.
	ErrExpired    = errors.New("expired")
	ErrIncomplete = errors.New("upload incomplete")

	// Download errors.
	ErrRangeNotSatisfiable = errors.New("range not satisfiable")

	// Underlying I/O or database failure. Retryable by the caller.
	ErrStorage = errors.New("storage failure")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")
)
