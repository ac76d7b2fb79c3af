package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"proxyencoder/internal/buildinfo"
	"proxyencoder/internal/config"
	"proxyencoder/internal/logging"
	"proxyencoder/internal/notifications"
	"proxyencoder/internal/queue"
	"proxyencoder/internal/services/ffmpeg"
)

// Worker processes encode jobs from the queue.
type Worker struct {
	cfg      *config.Config
	store    *queue.Store
	encoder  ffmpeg.Encoder
	notifier notifications.Service
	logger   *slog.Logger
	metrics  *Metrics

	id          string
	hostname    string
	queueName   string
	concurrency int
	progressBar bool

	pollInterval      time.Duration
	heartbeatInterval time.Duration
	heartbeatTimeout  time.Duration
	persistInterval   time.Duration
	maxAttempts       int

	mu        sync.RWMutex
	running   bool
	startedAt time.Time
	active    map[int]*queue.Job
	lastErr   error
	lastJob   *queue.Job
	completed int
	failed    int
}

// Option configures optional Worker behavior.
type Option func(*Worker)

// WithConcurrency overrides worker.concurrency.
func WithConcurrency(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.concurrency = n
		}
	}
}

// WithNotifier sets the notification sink for worker errors.
func WithNotifier(n notifications.Service) Option {
	return func(w *Worker) {
		if n != nil {
			w.notifier = n
		}
	}
}

// WithMetrics attaches Prometheus collectors.
func WithMetrics(m *Metrics) Option {
	return func(w *Worker) {
		w.metrics = m
	}
}

// WithQueueName overrides the routing queue derived from the build commit.
func WithQueueName(name string) Option {
	return func(w *Worker) {
		if name != "" {
			w.queueName = name
		}
	}
}

// WithProgressBar renders encode progress on stderr. It only takes effect
// with a single slot.
func WithProgressBar(enabled bool) Option {
	return func(w *Worker) {
		w.progressBar = enabled
	}
}

// New constructs a worker. The ID is unique per process so a restarted
// worker never inherits claims from its previous run.
func New(cfg *config.Config, store *queue.Store, encoder ffmpeg.Encoder, logger *slog.Logger, opts ...Option) *Worker {
	if logger == nil {
		logger = logging.NewNop()
	}
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		hostname = "unknown"
	}
	w := &Worker{
		cfg:               cfg,
		store:             store,
		encoder:           encoder,
		notifier:          notifications.NewService(nil),
		logger:            logging.NewComponentLogger(logger, "worker"),
		hostname:          hostname,
		queueName:         cfg.QueueName(buildinfo.Commit()),
		concurrency:       cfg.Worker.Concurrency,
		pollInterval:      time.Duration(cfg.Broker.PollInterval) * time.Second,
		heartbeatInterval: time.Duration(cfg.Worker.HeartbeatInterval) * time.Second,
		heartbeatTimeout:  time.Duration(cfg.Worker.HeartbeatTimeout) * time.Second,
		persistInterval:   time.Duration(cfg.Worker.ProgressPersistInterval) * time.Second,
		maxAttempts:       cfg.Worker.MaxAttempts,
		active:            make(map[int]*queue.Job),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.concurrency <= 0 {
		w.concurrency = 1
	}
	w.id = fmt.Sprintf("%s-%s", w.hostname, uuid.NewString()[:8])
	return w
}

// ID returns the identity recorded on claimed jobs.
func (w *Worker) ID() string { return w.id }

// QueueName returns the routing queue this worker consumes.
func (w *Worker) QueueName() string { return w.queueName }

// Run registers the worker and processes jobs until ctx is canceled. Jobs
// still encoding at shutdown are handed back to the queue.
func (w *Worker) Run(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return errors.New("worker already running")
	}
	w.running = true
	w.startedAt = time.Now()
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
	}()

	if err := w.store.RegisterWorker(ctx, queue.Worker{
		ID:          w.id,
		Hostname:    w.hostname,
		QueueName:   w.queueName,
		Version:     buildinfo.Version(),
		Concurrency: w.concurrency,
		StartedAt:   w.startedAt,
		LastSeen:    w.startedAt,
	}); err != nil {
		return fmt.Errorf("register worker: %w", err)
	}
	w.logger.Info("worker started",
		logging.String("worker_id", w.id),
		logging.String("queue", w.queueName),
		logging.Int("concurrency", w.concurrency),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		w.touchLoop(gctx)
		return nil
	})
	for slot := range w.concurrency {
		g.Go(func() error {
			w.runSlot(gctx, slot)
			return nil
		})
	}
	err := g.Wait()

	w.shutdown(ctx)
	return err
}

func (w *Worker) shutdown(ctx context.Context) {
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	released, err := w.store.ReleaseWorker(cleanupCtx, w.id)
	if err != nil {
		w.logger.Warn("failed to release in-flight jobs; they will be reclaimed after the heartbeat timeout",
			logging.Error(err),
			logging.String(logging.FieldEventType, "worker_release_failed"),
		)
	} else if released > 0 {
		w.logger.Info("returned in-flight jobs to the queue", logging.Int64("count", released))
	}
	if err := w.store.RemoveWorker(cleanupCtx, w.id); err != nil {
		w.logger.Warn("failed to deregister worker", logging.Error(err))
	}
	w.logger.Info("worker stopped", logging.String("worker_id", w.id))
}

// touchLoop keeps the registry entry fresh so queuers see this worker online.
func (w *Worker) touchLoop(ctx context.Context) {
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
			if err := w.store.TouchWorker(ctx, w.id); err != nil && !errors.Is(err, context.Canceled) {
				w.logger.Warn("worker registry touch failed", logging.Error(err))
			}
		}
	}
}

func (w *Worker) waitOrShutdown(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(w.pollInterval):
	}
}
