package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"proxyencoder/internal/chunking"
	"proxyencoder/internal/logging"
	"proxyencoder/internal/queue"
	"proxyencoder/internal/services"
)

// stitchIfReady elects a single worker to concatenate a finished chunk
// group. Workers that lose the election return immediately.
func (w *Worker) stitchIfReady(ctx context.Context, logger *slog.Logger, job *queue.Job) {
	won, err := w.store.ClaimStitch(ctx, job.ChunkGroup, w.id)
	if err != nil {
		logger.Error("stitch election failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "stitch_claim_failed"),
		)
		return
	}
	if !won {
		return
	}

	logger.Info("stitching chunks", logging.Int("chunks", job.ChunkCount))
	stitchErr := w.stitch(ctx, job)
	message := ""
	if stitchErr != nil {
		message = stitchErr.Error()
		logging.ErrorWithContext(logger, "stitch failed", "stitch_failed",
			logging.Error(stitchErr),
			logging.String(logging.FieldErrorHint, "chunks are left in "+chunking.ChunkDir(job.OutputPath)),
		)
		w.notifyError(ctx, job.ClipName+" (stitch)", stitchErr)
	}
	if err := w.store.FinishStitch(ctx, job.ChunkGroup, message); err != nil {
		logger.Error("failed to record stitch result", logging.Error(err))
	}
	if stitchErr == nil {
		w.metrics.count(resultStitched)
		logger.Info("stitch completed", logging.String("output", job.OutputPath))
	}
}

func (w *Worker) stitch(ctx context.Context, job *queue.Job) error {
	group, err := w.store.ChunkGroup(ctx, job.ChunkGroup)
	if err != nil {
		return fmt.Errorf("load chunk group: %w", err)
	}
	if len(group) != job.ChunkCount {
		return services.Wrap(services.ErrValidation, "stitch", "load chunk group",
			fmt.Sprintf("expected %d chunks, found %d", job.ChunkCount, len(group)), nil)
	}
	paths := make([]string, 0, len(group))
	for _, chunk := range group {
		paths = append(paths, chunking.ChunkPath(chunk.OutputPath, chunk.ChunkIndex))
	}
	ordered, err := chunking.Validate(paths)
	if err != nil {
		return services.Wrap(services.ErrValidation, "stitch", "validate chunks", "", err)
	}
	for _, path := range ordered {
		if _, err := os.Stat(path); err != nil {
			return services.Wrap(services.ErrNotFound, "stitch", "stat chunk", path, err)
		}
	}

	listFile := concatListPath(job.OutputPath)
	if err := os.WriteFile(listFile, []byte(chunking.ConcatList(ordered)), 0o644); err != nil {
		return fmt.Errorf("write concat list: %w", err)
	}
	if err := w.encoder.Concat(ctx, listFile, job.OutputPath); err != nil {
		return err
	}

	var cleanupErr error
	for _, path := range append(ordered, listFile) {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			cleanupErr = errors.Join(cleanupErr, err)
		}
	}
	// Other outputs in the same directory may still have chunks here.
	_ = os.Remove(chunking.ChunkDir(job.OutputPath))
	if cleanupErr != nil {
		w.logger.Warn("failed to remove stitched chunks", logging.Error(cleanupErr))
	}
	return nil
}

func concatListPath(output string) string {
	stem := strings.TrimSuffix(filepath.Base(output), filepath.Ext(output))
	return filepath.Join(chunking.ChunkDir(output), stem+".concat.txt")
}
