// Package worker runs periodic cache maintenance.
package worker

import (
	"context"
	"log/slog"
	"time"
)

// Cleaner purges expired durable-tier rows.
type Cleaner interface {
	CleanupExpired(ctx context.Context) (int64, error)
}

// CleanupWorker calls Cleaner on a fixed interval.
type CleanupWorker struct {
	cleaner  Cleaner
	interval time.Duration
	logger   *slog.Logger
}

// NewCleanupWorker builds a worker. A non-positive interval yields a worker
// whose Run returns immediately.
func NewCleanupWorker(cleaner Cleaner, interval time.Duration, logger *slog.Logger) *CleanupWorker {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &CleanupWorker{cleaner: cleaner, interval: interval, logger: logger}
}

// Run ticks until ctx is done. Failed passes are logged and retried on the
// next tick.
func (w *CleanupWorker) Run(ctx context.Context) error {
	if w.interval <= 0 {
		w.logger.InfoContext(ctx, "cache cleanup worker disabled")
		return nil
	}
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

func (w *CleanupWorker) runOnce(ctx context.Context) {
	start := time.Now()
	n, err := w.cleaner.CleanupExpired(ctx)
	if err != nil {
		w.logger.ErrorContext(ctx, "cache cleanup pass failed", "error", err)
		return
	}
	w.logger.InfoContext(ctx, "cache cleanup pass finished",
		"deleted", n,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}
