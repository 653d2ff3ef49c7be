// Package domain contains the core types shared across the discovery backend.
package domain

import "errors"

var (
	// ErrNotFound is returned when a session, operation or report does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput is returned when a request fails validation before any work starts.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidTransition is returned when an operation is asked to leave a terminal state.
	ErrInvalidTransition = errors.New("invalid status transition")
)
