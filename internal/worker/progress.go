package worker

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/time/rate"

	"proxyencoder/internal/logging"
	"proxyencoder/internal/queue"
	"proxyencoder/internal/services/ffmpeg"
)

// progressReporter fans ffmpeg progress out to the store, the log, and an
// optional terminal bar. Store writes are rate limited; the final update
// always lands.
type progressReporter struct {
	ctx     context.Context
	store   *queue.Store
	jobID   string
	worker  string
	logger  *slog.Logger
	limiter *rate.Limiter
	sampler *logging.ProgressSampler
	bar     *progressbar.ProgressBar
}

func (w *Worker) newProgressReporter(ctx context.Context, logger *slog.Logger, job *queue.Job) *progressReporter {
	interval := w.persistInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	p := &progressReporter{
		ctx:     ctx,
		store:   w.store,
		jobID:   job.ID,
		worker:  w.id,
		logger:  logger,
		limiter: rate.NewLimiter(rate.Every(interval), 1),
		sampler: logging.NewProgressSampler(10),
	}
	if w.progressBar && w.concurrency == 1 {
		p.bar = progressbar.NewOptions(100,
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetDescription(job.Label()),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionSetPredictTime(true),
			progressbar.OptionClearOnFinish(),
			progressbar.OptionThrottle(250*time.Millisecond),
		)
	}
	return p
}

func (p *progressReporter) update(u ffmpeg.ProgressUpdate) {
	message := progressMessage(u)
	if u.Done || p.limiter.Allow() {
		if err := p.store.UpdateProgress(p.ctx, p.jobID, p.worker, u.Percent, message); err != nil && p.ctx.Err() == nil {
			p.logger.Debug("progress update failed", logging.Error(err))
		}
	}
	if p.sampler.Due(u.Percent, u.Done) {
		p.logger.Info("encode progress",
			logging.Float64("percent", u.Percent),
			logging.String("speed", u.Speed),
		)
	}
	if p.bar != nil {
		_ = p.bar.Set(int(u.Percent))
	}
}

func (p *progressReporter) finish() {
	if p.bar != nil {
		_ = p.bar.Finish()
	}
}

func progressMessage(u ffmpeg.ProgressUpdate) string {
	if u.Done {
		return "Encoded"
	}
	out := u.OutTime.Truncate(time.Second).String()
	if u.Speed != "" {
		return fmt.Sprintf("%s encoded (%s)", out, u.Speed)
	}
	return out + " encoded"
}
