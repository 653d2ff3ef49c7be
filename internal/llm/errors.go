package llm

import (
	"errors"
	"fmt"
)

// TransientError is a temporary failure that may succeed on retry.
type TransientError struct {
	err error
}

func (e *TransientError) Error() string { return e.err.Error() }
func (e *TransientError) Unwrap() error { return e.err }

// NewTransientError wraps err as retryable.
func NewTransientError(err error) error {
	return &TransientError{err: err}
}

// FatalError is a permanent failure that should not be retried.
type FatalError struct {
	err error
}

func (e *FatalError) Error() string { return e.err.Error() }
func (e *FatalError) Unwrap() error { return e.err }

// NewFatalError wraps err as non-retryable.
func NewFatalError(err error) error {
	return &FatalError{err: err}
}

// IsTransient reports whether err should be retried.
func IsTransient(err error) bool {
	var transient *TransientError
	return errors.As(err, &transient)
}

// IsFatal reports whether err must not be retried.
func IsFatal(err error) bool {
	var fatal *FatalError
	return errors.As(err, &fatal)
}

// ParseError is returned when a response cannot be decoded into the expected shape.
type ParseError struct {
	Agent string
	Raw   string
	Err   error
}

func (e *ParseError) Error() string {
	raw := e.Raw
	if len(raw) > 120 {
		raw = raw[:120] + "..."
	}
	return fmt.Sprintf("%s: parse response: %v (raw: %q)", e.Agent, e.Err, raw)
}

func (e *ParseError) Unwrap() error { return e.Err }
