package workers

import (
	"context"
	"log/slog"
	"time"
)

// WorkFunc is one unit of periodic work. It returns the number of items
// processed and any critical error encountered.
type WorkFunc func(ctx context.Context, batchSize int) (int, error)

// RunLoop runs a generic worker function periodically until ctx ends.
func RunLoop(ctx context.Context, name string, interval time.Duration, batchSize int, fn WorkFunc) {
	slog.Info("worker starting",
		slog.String("worker", name),
		slog.Duration("interval", interval),
		slog.Int("batch_size", batchSize))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("worker stopping", slog.String("worker", name))
			return
		case <-ticker.C:
			runWork(ctx, name, batchSize, fn)
		}
	}
}

// runWork executes a single batch with a timeout.
func runWork(ctx context.Context, name string, batchSize int, fn WorkFunc) {
	runCtx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	processed, err := fn(runCtx, batchSize)
	if err != nil {
		slog.Error("worker run failed", slog.String("worker", name), slog.Any("error", err))
		return
	}
	if processed > 0 {
		slog.Debug("worker processed items", slog.String("worker", name), slog.Int("count", processed))
	}
}
