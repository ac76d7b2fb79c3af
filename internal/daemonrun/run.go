package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"proxyencoder/internal/buildinfo"
	"proxyencoder/internal/config"
	"proxyencoder/internal/daemon"
	"proxyencoder/internal/deps"
	"proxyencoder/internal/logging"
	"proxyencoder/internal/notifications"
	"proxyencoder/internal/preflight"
	"proxyencoder/internal/queue"
	"proxyencoder/internal/services/ffmpeg"
	"proxyencoder/internal/worker"
)

// Options configures worker process runtime behavior.
type Options struct {
	LogLevel    string
	Concurrency int
	Development bool
}

// Run starts the worker daemon and blocks until it is interrupted or the
// worker exits on its own.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("worker-%s.log", runID))
	level := opts.LogLevel
	if strings.TrimSpace(level) == "" {
		level = cfg.Worker.LogLevel
	}
	logger, err := logging.New(logging.Options{
		Level:       level,
		Format:      cfg.App.LogFormat,
		Outputs:     []string{"stdout", logPath},
		Development: opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update worker.log link: %v\n", err)
	}
	logging.PruneLogs(logger, cfg.Logging.RetentionDays, []string{logPath},
		retentionPatterns(cfg.Paths.LogDir, cfg.Paths.EncodeLogDir)...)

	statuses := logDependencySnapshot(signalCtx, logger, cfg)
	if failed := preflight.Failed(preflight.RunAll(signalCtx, cfg)); len(failed) > 0 {
		parts := make([]string, 0, len(failed))
		for _, r := range failed {
			parts = append(parts, fmt.Sprintf("%s: %s", r.Name, r.Detail))
		}
		logging.ErrorWithContext(logger, "preflight failed; worker not started", "preflight_failed",
			logging.String("checks", strings.Join(parts, "; ")),
			logging.String(logging.FieldErrorHint, "install ffmpeg/ffprobe or fix worker.ffmpeg_binary and directory permissions"),
		)
		return fmt.Errorf("preflight failed: %s", strings.Join(parts, "; "))
	}

	pidPath := filepath.Join(cfg.Paths.StateDir, "worker.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	store, err := queue.Open(cfg)
	if err != nil {
		logger.Error("open queue store", logging.Error(err))
		return err
	}

	encoder, err := ffmpeg.New(cfg.Worker.FFmpegBinary, cfg.Worker.FFprobeBinary, 0, ffmpeg.WithLogger(logger))
	if err != nil {
		store.Close()
		return fmt.Errorf("create encoder: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	concurrency := cfg.Worker.Concurrency
	if opts.Concurrency > 0 {
		concurrency = opts.Concurrency
	}
	w := worker.New(cfg, store, encoder, logger,
		worker.WithConcurrency(concurrency),
		worker.WithNotifier(notifications.NewService(cfg)),
		worker.WithMetrics(worker.NewMetrics(registry)),
		worker.WithProgressBar(isatty.IsTerminal(os.Stderr.Fd())),
	)

	d, err := daemon.New(cfg, store, w, logger,
		daemon.WithGatherer(registry),
		daemon.WithDependencies(statuses),
	)
	if err != nil {
		store.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		logging.ErrorWithContext(logger, "worker daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "stop the other worker or check queue database access"),
		)
		return err
	}

	select {
	case <-signalCtx.Done():
		logger.Info("worker daemon shutting down")
	case <-d.Done():
	}
	d.Stop()
	if err := d.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// retentionPatterns covers worker run logs plus encode logs, which sit either
// directly in the encode log dir or in one directory per batch.
func retentionPatterns(logDir, encodeLogDir string) []string {
	var patterns []string
	if strings.TrimSpace(logDir) != "" {
		patterns = append(patterns, filepath.Join(logDir, "worker-*.log"))
	}
	if strings.TrimSpace(encodeLogDir) != "" {
		patterns = append(patterns,
			filepath.Join(encodeLogDir, "*.log"),
			filepath.Join(encodeLogDir, "*", "*.log"),
		)
	}
	return patterns
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "worker.log")
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logDependencySnapshot(ctx context.Context, logger *slog.Logger, cfg *config.Config) []deps.Status {
	statuses := preflight.CheckSystemDeps(ctx, cfg)
	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "dependency_snapshot"),
		logging.String("version", buildinfo.Version()),
		logging.String("queue", cfg.QueueName(buildinfo.Commit())),
		logging.String("broker", cfg.Broker.Backend),
	}
	for _, status := range statuses {
		key := strings.ToLower(status.Name)
		attrs = append(attrs,
			logging.Bool(key+"_available", status.Available),
			logging.String(key+"_binary", status.Command),
			logging.String(key+"_version", status.Version),
		)
	}
	logger.Info("dependency snapshot", logging.Args(attrs...)...)
	return statuses
}
