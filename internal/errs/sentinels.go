// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across repo/service layers.
var (
	// ErrNotFound indicates the requested entity does not exist or is not owned by the caller.
	ErrNotFound = errors.New("not found")

	// ErrUnauthenticated indicates a missing, invalid or expired session.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrInvalidCredential indicates a failed password login. It never says which part was wrong.
	ErrInvalidCredential = errors.New("invalid email or password")

	// ErrInvalidInput indicates request validation failure.
	ErrInvalidInput = errors.New("invalid input")

	// ErrAlreadyExists indicates a unique constraint violation (e.g., email taken).
	ErrAlreadyExists = errors.New("already exists")

	// ErrRateLimited indicates temporary login lock due to rate limiting.
	ErrRateLimited = errors.New("rate limited")

	// ErrProvider indicates an upstream failure (LLM, OAuth, users platform).
	ErrProvider = errors.New("provider error")

	// ErrMissingEmail indicates the OAuth provider returned a profile without email.
	ErrMissingEmail = errors.New("provider returned no email")

	// ErrPersistence indicates a store write failure.
	ErrPersistence = errors.New("persistence error")

	// ErrNoContent indicates the image provider returned no embeddable payload.
	ErrNoContent = errors.New("no image content")

	// ErrBillingRequired indicates the provider rejected the call for quota or billing reasons.
	ErrBillingRequired = errors.New("billing account required")

	// ErrNotConfigured indicates an optional integration is not configured.
	ErrNotConfigured = errors.New("not configured")
)
