package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"proxyencoder/internal/logging"
	"proxyencoder/internal/queue"
)

// heartbeatLoop refreshes the job's heartbeat until ctx ends. Losing
// ownership cancels ctx with errClaimLost so the encode stops.
func (w *Worker) heartbeatLoop(ctx context.Context, cancel context.CancelCauseFunc, wg *sync.WaitGroup, logger *slog.Logger, jobID string) {
	defer wg.Done()
	interval := w.heartbeatInterval
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := w.store.UpdateHeartbeat(ctx, jobID, w.id)
			switch {
			case err == nil:
			case errors.Is(err, queue.ErrNotClaimed):
				cancel(errClaimLost)
				return
			case errors.Is(err, context.Canceled):
				return
			default:
				logger.Warn("heartbeat update failed", logging.Error(err))
			}
		}
	}
}
