// Package common defines shared constants, sentinel errors and small helpers
// used across GophBell packages. Callers should use errors.Is to match the
// sentinel values.
package common

import "errors"

var (
	// Storage / lookup.
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")

	// Auth.
	ErrUnauthorized = errors.New("unauthorized")
	ErrTokenExpired = errors.New("token expired")
	ErrNoSession    = errors.New("no session")

	// Transport.
	ErrUnavailable = errors.New("backend unavailable")
	ErrTimeout     = errors.New("request timed out")

	// Input.
	ErrValidation = errors.New("validation error")

	// Lifecycle.
	ErrNotStarted = errors.New("not started")
)
