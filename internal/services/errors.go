// Package services defines the business logic for interview sessions,
// messages, and theme accumulation. This file centralizes common
// service-level error values so that they can be consistently returned by
// service methods and checked by callers.
//
// These errors are intended for internal use by the service layer;
// translation into user-facing messages or HTTP status codes is performed at
// the handler layer, which is the single place mapping error kind → status.
package services

import "errors"

var (
	// ErrSessionNotFound indicates that the requested session does not exist.
	ErrSessionNotFound = errors.New("session not found")

	// ErrEmptyContent is returned when a message submission contains no
	// content after trimming.
	ErrEmptyContent = errors.New("content is empty")

	// ErrTooLong is returned when a message submission exceeds the maximum
	// configured length limit.
	ErrTooLong = errors.New("content too long")
)
