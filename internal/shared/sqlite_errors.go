// Package shared provides common utilities used across the codebase.
//
//nolint:revive // "shared" is an intentional package name for cross-cutting helpers.
package shared

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// IsSQLiteConflictError reports whether err is a SQLITE_BUSY or
// "database is locked" error. Both are worth retrying.
func IsSQLiteConflictError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

// ConflictRetries and ConflictBaseDelay bound RetryOnConflict: 100ms, 200ms, 400ms.
const (
	ConflictRetries   = 3
	ConflictBaseDelay = 100 * time.Millisecond
)

// RetryOnConflict runs fn and retries it with exponential backoff while it
// fails with a SQLite conflict. Other errors are returned immediately.
func RetryOnConflict(ctx context.Context, fn func() error) error {
	var err error
	for i := 0; i < ConflictRetries; i++ {
		err = fn()
		if err == nil || !IsSQLiteConflictError(err) {
			return err
		}
		if i == ConflictRetries-1 {
			break
		}

		delay := ConflictBaseDelay * time.Duration(1<<i)
		slog.Debug("SQLite conflict, retrying", "attempt", i+1, "delay", delay)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return fmt.Errorf("after %d attempts: %w", ConflictRetries, err)
}
