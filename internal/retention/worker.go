// Package retention removes abandoned sessions in the background.
package retention

import (
	"context"
	"log/slog"
	"time"

	"github.com/ashureev/sommelier/internal/metrics"
)

// Sweeper deletes sessions idle for longer than ttl and reports how many went.
type Sweeper interface {
	DeleteStaleSessions(ctx context.Context, ttl time.Duration) (int64, error)
}

// StartWorker runs a background goroutine that sweeps stale sessions every
// interval until ctx is cancelled. The returned channel closes on exit.
func StartWorker(ctx context.Context, sweeper Sweeper, ttl, interval time.Duration) <-chan struct{} {
	done := make(chan struct{})
	ticker := time.NewTicker(interval)
	go func() {
		defer close(done)
		defer ticker.Stop()
		slog.Info("Retention worker started", "interval", interval, "ttl", ttl)

		for {
			select {
			case <-ticker.C:
				Sweep(ctx, sweeper, ttl)
			case <-ctx.Done():
				slog.Info("Retention worker shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
	return done
}

// Sweep runs one retention pass. Failures are logged and retried on the next tick.
func Sweep(ctx context.Context, sweeper Sweeper, ttl time.Duration) int64 {
	deleted, err := sweeper.DeleteStaleSessions(ctx, ttl)
	if err != nil {
		if ctx.Err() != nil {
			slog.Debug("Retention sweep cancelled", "error", err)
			return 0
		}
		slog.Error("Retention sweep failed", "error", err)
		return 0
	}
	if deleted > 0 {
		metrics.SessionsExpired.Add(float64(deleted))
		slog.Info("Retention sweep removed stale sessions", "count", deleted)
	}
	return deleted
}
