// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// This file centralizes symbolic error code constants that are mapped to HTTP
// responses (via the `fail()` helper in this package). These codes give
// clients a stable, machine-readable error taxonomy that supplements the
// human-readable messages.
//
// Conventions:
//   - Codes are UPPER_SNAKE_CASE, matching the wire contract consumed by the
//     interview frontend.
//   - VALIDATION_ERROR covers every malformed-input case (missing content,
//     absent path parameters), always with status 400.
//   - SESSION_NOT_FOUND is the only domain-specific not-found; unknown routes
//     use the generic NOT_FOUND.
//   - Completion-provider failures map to INTERNAL_SERVER_ERROR with a
//     generic message that never leaks provider internals.
package handlers

const (
	ErrCodeValidation       = "VALIDATION_ERROR"
	ErrCodeSessionNotFound  = "SESSION_NOT_FOUND"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeMethodNotAllowed = "METHOD_NOT_ALLOWED"
	ErrCodeInternal         = "INTERNAL_SERVER_ERROR"
)
