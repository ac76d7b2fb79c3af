package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"proxyencoder/internal/buildinfo"
	"proxyencoder/internal/chunking"
	"proxyencoder/internal/config"
	"proxyencoder/internal/editor"
	"proxyencoder/internal/linker"
	"proxyencoder/internal/logging"
	"proxyencoder/internal/notifications"
	"proxyencoder/internal/preflight"
	"proxyencoder/internal/queue"
	"proxyencoder/internal/reconcile"
	"proxyencoder/internal/services"
)

// ErrNoCompatibleWorkers reports that every online worker consumes a
// different queue than this build routes to.
var ErrNoCompatibleWorkers = errors.New("no online worker runs this version")

// Dispatcher drives one queue run.
type Dispatcher struct {
	cfg      *config.Config
	store    *queue.Store
	client   editor.Client
	prompter reconcile.Prompter
	notifier notifications.Service
	logger   *slog.Logger
	out      io.Writer

	queueName    string
	constrained  bool
	pollInterval time.Duration
}

// Option configures optional Dispatcher behaviour.
type Option func(*Dispatcher)

// WithOutput sets where operator-facing progress lines are written.
func WithOutput(w io.Writer) Option {
	return func(d *Dispatcher) {
		if w != nil {
			d.out = w
		}
	}
}

// WithQueueName overrides the routing queue derived from the build commit.
func WithQueueName(name string) Option {
	return func(d *Dispatcher) {
		if name != "" {
			d.queueName = name
			d.constrained = !d.cfg.App.DisableVersionConstrain
		}
	}
}

// WithPollInterval overrides broker.poll_interval while waiting.
func WithPollInterval(interval time.Duration) Option {
	return func(d *Dispatcher) {
		if interval > 0 {
			d.pollInterval = interval
		}
	}
}

// New builds a Dispatcher.
func New(cfg *config.Config, store *queue.Store, client editor.Client, prompter reconcile.Prompter, notifier notifications.Service, logger *slog.Logger, opts ...Option) *Dispatcher {
	if notifier == nil {
		notifier = notifications.NewService(nil)
	}
	commit := buildinfo.Commit()
	d := &Dispatcher{
		cfg:          cfg,
		store:        store,
		client:       client,
		prompter:     prompter,
		notifier:     notifier,
		logger:       logging.NewComponentLogger(logger, "dispatch"),
		out:          io.Discard,
		queueName:    cfg.QueueName(commit),
		constrained:  !cfg.App.DisableVersionConstrain && commit != "",
		pollInterval: time.Duration(cfg.Broker.PollInterval) * time.Second,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.pollInterval <= 0 {
		d.pollInterval = 5 * time.Second
	}
	return d
}

// Result reports what a run did.
type Result struct {
	Project   string
	Timeline  string
	Plan      reconcile.Plan
	BatchID   string
	QueueName string
	Jobs      int
	Summary   *queue.BatchSummary
	Linked    []reconcile.Clip
	// LinkFailed lists clips whose proxy rendered but could not be linked,
	// plus clips whose encode or stitch failed.
	LinkFailed []reconcile.Clip
}

// Queued reports whether the run enqueued a batch.
func (r Result) Queued() bool { return r.BatchID != "" }

// Run executes the queue flow. With wait false it returns right after the
// batch is enqueued.
func (d *Dispatcher) Run(ctx context.Context, wait bool) (Result, error) {
	if err := d.checkWorkers(ctx); err != nil {
		return Result{}, err
	}

	project, err := d.client.Project(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("read project: %w", err)
	}
	if project.CurrentTimeline == "" {
		return Result{}, services.Wrap(services.ErrValidation, "dispatch", "read project", "no timeline is open", nil)
	}
	result := Result{Project: project.Name, Timeline: project.CurrentTimeline, QueueName: d.queueName}
	d.printf("Working on: '%s'\n", project.Name)

	clips, err := reconcile.Collect(ctx, d.client, project.CurrentTimeline,
		reconcile.FiltersFromConfig(d.cfg.Filters), d.cfg.Paths.ProxyPathRoot, d.logger)
	if err != nil {
		return result, err
	}

	link := linker.New(d.client, d.logger)
	rec := reconcile.New(d.prompter, link, d.cfg.Paths.ProxyPathRoot, d.cfg.Proxy.Ext, d.cfg.Proxy.Overwrite, d.logger)
	plan, err := rec.Run(ctx, clips)
	result.Plan = plan
	if err != nil {
		return result, err
	}
	switch plan.Outcome {
	case reconcile.OutcomeAllLinked:
		d.printf("All clips linked now. No encoding necessary.\n")
		return result, nil
	case reconcile.OutcomeNothingToQueue:
		d.printf("Nothing left to queue.\n")
		return result, nil
	}

	batchID := uuid.NewString()
	jobs, err := d.buildJobs(plan.Jobs, batchID, project)
	if err != nil {
		return result, err
	}
	stored, err := d.store.Enqueue(ctx, jobs)
	if err != nil {
		return result, fmt.Errorf("enqueue batch: %w", err)
	}
	result.BatchID = batchID
	result.Jobs = len(stored)
	d.logger.Info("batch queued",
		logging.String(logging.FieldBatchID, batchID),
		logging.String("queue", d.queueName),
		logging.Int("clips", len(plan.Jobs)),
		logging.Int("jobs", len(stored)),
	)
	d.printf("Queued %d proxies as %d jobs on queue %q (batch %s)\n", len(plan.Jobs), len(stored), d.queueName, batchID)
	d.publish(ctx, notifications.EventBatchQueued, notifications.Payload{
		"project":  project.Name,
		"timeline": project.CurrentTimeline,
		"count":    len(plan.Jobs),
		"batch_id": batchID,
	})

	if !wait {
		return result, nil
	}

	d.printf("Waiting for job to finish. Feel free to minimize.\n")
	summary, err := d.waitForBatch(ctx, batchID)
	result.Summary = summary
	if err != nil {
		return result, err
	}

	ready, failed, err := d.finishedClips(ctx, batchID, plan.Jobs)
	if err != nil {
		return result, err
	}
	if len(failed) > 0 {
		d.printf("Some proxies failed to encode. Check `proxyencoder mon`.\n")
		d.publish(ctx, notifications.EventBatchFailed, notifications.Payload{
			"failed":   len(failed),
			"batch_id": batchID,
		})
	}
	d.printf("Completed encoding %d proxies.\n", len(ready))
	d.publish(ctx, notifications.EventBatchCompleted, notifications.Payload{
		"completed": len(ready),
		"batch_id":  batchID,
	})

	d.printf("Linking proxies\n")
	linked, linkFailed := link.LinkClips(ctx, ready)
	result.Linked = linked
	result.LinkFailed = append(failed, linkFailed...)
	if len(linkFailed) > 0 {
		d.printf("Couldn't link %d proxies. Link manually:\n", len(linkFailed))
		for _, clip := range linkFailed {
			d.printf("  %s -> %s\n", clip.Name(), clip.UnlinkedProxy)
		}
	}
	return result, nil
}

// checkWorkers warns or stops when no online worker would consume the batch.
func (d *Dispatcher) checkWorkers(ctx context.Context) error {
	if !d.constrained {
		d.logger.Warn("version constraint disabled; any worker may encode this batch",
			logging.String(logging.FieldEventType, "version_constraint_disabled"),
			logging.String(logging.FieldImpact, "workers on other versions may render proxies differently"),
		)
		return nil
	}

	since := time.Now().Add(-time.Duration(d.cfg.Worker.HeartbeatTimeout) * time.Second)
	workers, err := d.store.OnlineWorkers(ctx, since)
	if err != nil {
		return fmt.Errorf("list online workers: %w", err)
	}
	report := preflight.CheckWorkers(workers, d.queueName, d.constrained)
	switch {
	case report.None():
		d.printf("No workers are online. Jobs will wait until one starts.\n")
		return d.confirm(ctx, "Queue anyway?")
	case report.AllIncompatible():
		return fmt.Errorf("%w: queue %q; online hosts %s run other versions",
			ErrNoCompatibleWorkers, d.queueName, strings.Join(report.IncompatibleHosts, ", "))
	case len(report.Incompatible) > 0:
		d.printf("%d of %d online workers run a different version: %s\n",
			len(report.Incompatible), len(workers), strings.Join(report.IncompatibleHosts, ", "))
		d.printf("Those workers will not pick up this batch.\n")
		return d.confirm(ctx, "Continue?")
	}
	d.logger.Info("compatible workers online", logging.Int("count", len(report.Compatible)))
	return nil
}

func (d *Dispatcher) confirm(ctx context.Context, question string) error {
	ok, err := d.prompter.Confirm(ctx, question)
	if err != nil {
		return err
	}
	if !ok {
		return reconcile.ErrAborted
	}
	return nil
}

// buildJobs turns each planned clip into one job, or one job per chunk when
// the clip is long enough to split.
func (d *Dispatcher) buildJobs(clips []reconcile.Clip, batchID string, project editor.ProjectInfo) ([]*queue.Job, error) {
	jobs := make([]*queue.Job, 0, len(clips))
	for _, clip := range clips {
		segments, err := chunking.Split(clip, d.cfg.Chunking)
		if err != nil {
			return nil, fmt.Errorf("split %s: %w", clip.Name(), err)
		}
		base := queue.Job{
			BatchID:       batchID,
			QueueName:     d.queueName,
			Project:       project.Name,
			Timeline:      project.CurrentTimeline,
			MediaID:       clip.MediaID,
			ClipName:      clip.Name(),
			SourcePath:    clip.SourcePath,
			OutputPath:    clip.OutputPath,
			Settings:      d.cfg.Proxy,
			Resolution:    clip.Resolution,
			FPS:           clip.FPS,
			Frames:        clip.Frames,
			StartTimecode: clip.StartTimecode,
			HFlip:         clip.HFlip,
			VFlip:         clip.VFlip,
		}
		if len(segments) == 1 && segments[0].Chunk == nil {
			job := base
			jobs = append(jobs, &job)
			continue
		}
		group := uuid.NewString()
		for _, seg := range segments {
			job := base
			job.ChunkGroup = group
			job.ChunkIndex = seg.Chunk.Number
			job.ChunkCount = seg.Count
			job.ChunkIn = seg.Chunk.In
			job.ChunkOut = seg.Chunk.Out
			jobs = append(jobs, &job)
		}
	}
	return jobs, nil
}

func (d *Dispatcher) publish(ctx context.Context, event notifications.Event, payload notifications.Payload) {
	if err := d.notifier.Publish(ctx, event, payload); err != nil {
		d.logger.Warn("notification failed",
			logging.String("event", string(event)),
			logging.Error(err),
			logging.String(logging.FieldEventType, "notification_failed"),
		)
	}
}

func (d *Dispatcher) printf(format string, args ...any) {
	fmt.Fprintf(d.out, format, args...)
}
