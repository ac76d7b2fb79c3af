package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gofrs/flock"
	"github.com/prometheus/client_golang/prometheus"

	"proxyencoder/internal/config"
	"proxyencoder/internal/deps"
	"proxyencoder/internal/logging"
	"proxyencoder/internal/queue"
	"proxyencoder/internal/worker"
)

// ErrAlreadyRunning reports that another worker daemon holds the lock.
var ErrAlreadyRunning = errors.New("another worker is running")

// Daemon owns the worker lifecycle and enforces single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *queue.Store
	worker   *worker.Worker
	gatherer prometheus.Gatherer
	deps     []deps.Status

	lockPath string
	lock     *flock.Flock
	server   *statusServer

	running atomic.Bool
	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	runErr  error
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool          `json:"running"`
	Worker       worker.Status `json:"worker"`
	Queue        queue.Stats   `json:"queue"`
	QueueError   string        `json:"queue_error,omitempty"`
	Backend      string        `json:"backend"`
	Store        string        `json:"store"`
	LockFilePath string        `json:"lock_file"`
	Dependencies []deps.Status `json:"dependencies,omitempty"`
}

// Option configures optional daemon behaviour.
type Option func(*Daemon)

// WithGatherer sets the registry served on /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(d *Daemon) {
		if g != nil {
			d.gatherer = g
		}
	}
}

// WithDependencies records the dependency check results reported by Status.
func WithDependencies(statuses []deps.Status) Option {
	return func(d *Daemon) {
		d.deps = statuses
	}
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *queue.Store, w *worker.Worker, logger *slog.Logger, opts ...Option) (*Daemon, error) {
	if cfg == nil || store == nil || w == nil {
		return nil, errors.New("daemon requires config, store, and worker")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	lockPath := cfg.WorkerLockPath()
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    store,
		worker:   w,
		gatherer: prometheus.DefaultGatherer,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Start acquires the daemon lock, starts the status server, and launches
// the worker in the background.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w (lock %s)", ErrAlreadyRunning, d.lockPath)
	}

	runCtx, cancel := context.WithCancel(ctx)
	server := newStatusServer(d.cfg.Worker.ListenAddress, d, d.gatherer, d.logger)
	if err := server.start(); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return err
	}

	done := make(chan struct{})
	d.mu.Lock()
	d.cancel = cancel
	d.done = done
	d.server = server
	d.runErr = nil
	d.mu.Unlock()
	d.running.Store(true)

	go func() {
		defer close(done)
		err := d.worker.Run(runCtx)
		if err != nil && !errors.Is(err, context.Canceled) {
			d.logger.Error("worker exited", logging.Error(err))
			d.mu.Lock()
			d.runErr = err
			d.mu.Unlock()
		}
	}()

	d.logger.Info("worker daemon started",
		logging.String("lock", d.lockPath),
		logging.String("queue", d.worker.QueueName()),
	)
	return nil
}

// Done is closed when the worker exits, either after Stop or on a fatal
// error. It is nil before Start.
func (d *Daemon) Done() <-chan struct{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.done
}

// Err returns the error the worker exited with, if any.
func (d *Daemon) Err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.runErr
}

// Stop cancels the worker, waits for in-flight jobs to be handed back, and
// releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	d.mu.Lock()
	cancel, done, server := d.cancel, d.done, d.server
	d.cancel = nil
	d.server = nil
	d.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
	server.stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("worker daemon stopped")
}

// ListenAddr returns the status server's bound address, or "" when the
// server is disabled.
func (d *Daemon) ListenAddr() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.server.Addr()
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Status returns a snapshot of the daemon, worker, and queue.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:      d.running.Load(),
		Worker:       d.worker.Status(),
		Backend:      d.store.Backend(),
		Store:        d.store.Location(),
		LockFilePath: d.lockPath,
		Dependencies: d.deps,
	}
	stats, err := d.store.Stats(ctx)
	if err != nil {
		status.QueueError = err.Error()
	} else {
		status.Queue = stats
	}
	return status
}
