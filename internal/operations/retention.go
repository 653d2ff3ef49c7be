package operations

import (
	"context"
	"log/slog"
	"time"

	"github.com/ashureev/strategic-discovery/internal/store"
)

const retentionInterval = 1 * time.Hour

// StartRetentionWorker periodically deletes sessions older than retention,
// together with their operations, reports and prospects. A non-positive
// retention disables the worker.
func StartRetentionWorker(ctx context.Context, repo store.Repository, retention time.Duration, logger *slog.Logger) {
	startRetentionWorker(ctx, repo, retention, retentionInterval, time.Now, logger)
}

func startRetentionWorker(ctx context.Context, repo store.Repository, retention, interval time.Duration, now func() time.Time, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	if retention <= 0 {
		logger.Info("Retention worker disabled")
		return
	}

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		logger.Info("Retention worker started", "interval", interval, "retention", retention)

		for {
			select {
			case <-ticker.C:
				pruneSessions(ctx, repo, now().Add(-retention), logger)
			case <-ctx.Done():
				logger.Info("Retention worker shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

func pruneSessions(ctx context.Context, repo store.Repository, cutoff time.Time, logger *slog.Logger) {
	deleted, err := repo.DeleteSessionsBefore(ctx, cutoff)
	if err != nil {
		logger.Error("Retention worker failed to prune sessions", "stage", "retention", "error", err)
		return
	}
	if deleted > 0 {
		logger.Info("Retention worker pruned sessions", "count", deleted, "cutoff", cutoff)
	}
}
