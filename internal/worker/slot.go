package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"proxyencoder/internal/chunking"
	"proxyencoder/internal/logging"
	"proxyencoder/internal/notifications"
	"proxyencoder/internal/queue"
	"proxyencoder/internal/services"
	"proxyencoder/internal/services/ffmpeg"
)

var errClaimLost = errors.New("job no longer owned by this worker")

func (w *Worker) runSlot(ctx context.Context, slot int) {
	logger := w.logger.With(logging.Int("slot", slot))
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		w.reclaimStale(ctx, logger)

		job, err := w.store.Claim(ctx, w.queueName, w.id)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.recordOutcome(nil, err, false)
			logger.Error("failed to claim next job",
				logging.Error(err),
				logging.String(logging.FieldEventType, "queue_claim_failed"),
				logging.String(logging.FieldErrorHint, "check queue database access"),
			)
			w.waitOrShutdown(ctx)
			continue
		}
		if job == nil {
			w.waitOrShutdown(ctx)
			continue
		}

		w.processJob(ctx, slot, logger, job)
	}
}

func (w *Worker) reclaimStale(ctx context.Context, logger *slog.Logger) {
	if w.heartbeatTimeout <= 0 {
		return
	}
	cutoff := time.Now().Add(-w.heartbeatTimeout)
	reclaimed, failed, err := w.store.ReclaimStale(ctx, cutoff, w.maxAttempts)
	if err != nil {
		if ctx.Err() == nil {
			logger.Warn("reclaim stale jobs failed; stuck jobs may remain",
				logging.Error(err),
				logging.String(logging.FieldEventType, "heartbeat_reclaim_failed"),
				logging.String(logging.FieldErrorHint, "check queue database access"),
			)
		}
		return
	}
	if reclaimed > 0 || failed > 0 {
		logger.Info("reclaimed stale jobs",
			logging.Int64("requeued", reclaimed),
			logging.Int64("failed", failed),
		)
	}
}

func (w *Worker) processJob(ctx context.Context, slot int, logger *slog.Logger, job *queue.Job) {
	ctx = services.WithJob(ctx, services.JobScope{
		JobID:   job.ID,
		BatchID: job.BatchID,
		Clip:    job.Label(),
		Worker:  w.id,
	})
	logger = logging.WithContext(ctx, logger)

	w.setActive(slot, job)
	defer w.setActive(slot, nil)
	w.metrics.jobStarted()
	defer w.metrics.jobFinished()

	logger.Info("encoding started",
		logging.String("source", job.SourcePath),
		logging.String("output", job.OutputPath),
		logging.Int("attempt", job.Attempts),
	)

	jobCtx, cancel := context.WithCancelCause(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go w.heartbeatLoop(jobCtx, cancel, &wg, logger, job.ID)

	start := time.Now()
	err := w.encode(jobCtx, slot, logger, job)
	elapsed := time.Since(start)
	cause := context.Cause(jobCtx)
	cancel(nil)
	wg.Wait()

	switch {
	case errors.Is(cause, errClaimLost):
		logger.Warn("encode abandoned; job was canceled or reclaimed",
			logging.String(logging.FieldEventType, "job_claim_lost"),
		)
		w.metrics.observe(resultAbandoned, elapsed)
		w.recordOutcome(job, nil, false)
		return
	case err != nil && ctx.Err() != nil:
		logger.Info("encode interrupted by shutdown")
		return
	}

	if err == nil {
		w.finishJob(ctx, logger, job, elapsed)
		return
	}
	w.failJob(ctx, logger, job, err, elapsed)
}

func (w *Worker) finishJob(ctx context.Context, logger *slog.Logger, job *queue.Job, elapsed time.Duration) {
	if err := w.store.Complete(ctx, job.ID, w.id); err != nil {
		if errors.Is(err, queue.ErrNotClaimed) {
			logger.Warn("encode finished after the job was canceled or reclaimed")
			w.metrics.observe(resultAbandoned, elapsed)
			return
		}
		logger.Error("failed to record completed job",
			logging.Error(err),
			logging.String(logging.FieldEventType, "queue_update_failed"),
		)
		w.recordOutcome(job, err, false)
		return
	}
	w.metrics.observe(resultCompleted, elapsed)
	w.recordOutcome(job, nil, true)
	logger.Info("encoding completed", logging.Duration("elapsed", elapsed.Round(time.Second)))

	if job.IsChunk() {
		w.stitchIfReady(ctx, logger, job)
	}
}

func (w *Worker) failJob(ctx context.Context, logger *slog.Logger, job *queue.Job, encodeErr error, elapsed time.Duration) {
	requeue := queue.ShouldRequeue(encodeErr, job.Attempts, w.maxAttempts)
	if err := w.store.Fail(ctx, job.ID, w.id, encodeErr.Error(), requeue); err != nil {
		if !errors.Is(err, queue.ErrNotClaimed) {
			logger.Error("failed to record job failure",
				logging.Error(err),
				logging.String(logging.FieldEventType, "queue_update_failed"),
			)
		}
	}
	if requeue {
		w.metrics.observe(resultRequeued, elapsed)
		w.recordOutcome(job, encodeErr, false)
		logger.Warn("encode failed; job returned to the queue",
			logging.Error(encodeErr),
			logging.Int("attempt", job.Attempts),
			logging.Int("max_attempts", w.maxAttempts),
			logging.String(logging.FieldEventType, "encode_retry"),
		)
		return
	}

	w.metrics.observe(resultFailed, elapsed)
	w.recordOutcome(job, encodeErr, true)
	logging.ErrorWithContext(logger, "encode failed", "encode_failed",
		logging.Error(encodeErr),
		logging.String(logging.FieldErrorHint, "see the encode log: "+job.EncodeLogPath),
	)
	w.notifyError(ctx, job.Label(), encodeErr)
}

func (w *Worker) notifyError(ctx context.Context, label string, err error) {
	payload := notifications.Payload{
		"host":    w.hostname,
		"context": label,
		"error":   err.Error(),
	}
	if nerr := w.notifier.Publish(ctx, notifications.EventWorkerError, payload); nerr != nil {
		w.logger.Warn("worker error notification failed", logging.Error(nerr))
	}
}

func (w *Worker) encode(ctx context.Context, slot int, logger *slog.Logger, job *queue.Job) error {
	req := encodeRequest(job)
	if req.LogPath == "" {
		req.LogPath = w.encodeLogPath(job)
		job.EncodeLogPath = req.LogPath
	}
	reporter := w.newProgressReporter(ctx, logger, job)
	defer reporter.finish()
	return w.encoder.Encode(ctx, req, reporter.update)
}

func (w *Worker) encodeLogPath(job *queue.Job) string {
	name := strings.TrimSuffix(filepath.Base(job.OutputPath), filepath.Ext(job.OutputPath))
	if job.IsChunk() {
		name = fmt.Sprintf("%s-%d", name, job.ChunkIndex)
	}
	return filepath.Join(w.cfg.Paths.EncodeLogDir, job.BatchID, name+".log")
}

// encodeRequest maps a queued job onto an ffmpeg render. Chunk jobs render
// into the group's chunk directory; OutputPath always names the final proxy.
func encodeRequest(job *queue.Job) ffmpeg.EncodeRequest {
	req := ffmpeg.EncodeRequest{
		Source:        job.SourcePath,
		Output:        job.OutputPath,
		LogPath:       job.EncodeLogPath,
		Settings:      job.Settings,
		Resolution:    job.Resolution,
		FPS:           job.FPS,
		Frames:        job.Frames,
		StartTimecode: job.StartTimecode,
		HFlip:         job.HFlip,
		VFlip:         job.VFlip,
	}
	if job.IsChunk() {
		req.Output = chunking.ChunkPath(job.OutputPath, job.ChunkIndex)
		req.ChunkIn = job.ChunkIn
		req.ChunkOut = job.ChunkOut
		req.FirstChunk = job.ChunkIndex == 1
	}
	return req
}
