package dispatch

import (
	"context"
	"fmt"
	"time"

	"proxyencoder/internal/queue"
	"proxyencoder/internal/reconcile"
)

// waitForBatch polls the batch until nothing is pending, encoding, or
// waiting to be stitched.
func (d *Dispatcher) waitForBatch(ctx context.Context, batchID string) (*queue.BatchSummary, error) {
	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	var last string
	for {
		summary, err := d.store.BatchSummary(ctx, batchID)
		if err != nil {
			return nil, fmt.Errorf("read batch %s: %w", batchID, err)
		}
		if summary == nil {
			return nil, fmt.Errorf("batch %s disappeared from the queue", batchID)
		}
		line := progressLine(summary)
		if line != last {
			d.printf("%s\n", line)
			last = line
		}
		if summary.Done() {
			return summary, nil
		}
		select {
		case <-ctx.Done():
			return summary, ctx.Err()
		case <-ticker.C:
		}
	}
}

func progressLine(s *queue.BatchSummary) string {
	line := fmt.Sprintf("%d/%d jobs done (%.0f%%)", s.Completed, s.Total, s.Percent())
	if s.Encoding > 0 {
		line += fmt.Sprintf(", %d encoding", s.Encoding)
	}
	if s.PendingStitches > 0 {
		line += fmt.Sprintf(", %d stitching", s.PendingStitches)
	}
	if s.Failed > 0 {
		line += fmt.Sprintf(", %d failed", s.Failed)
	}
	if s.Canceled > 0 {
		line += fmt.Sprintf(", %d canceled", s.Canceled)
	}
	return line
}

// finishedClips splits the planned clips into those whose final proxy is
// ready to link and those that failed. A chunked clip is ready only once
// its stitch succeeded.
func (d *Dispatcher) finishedClips(ctx context.Context, batchID string, clips []reconcile.Clip) (ready, failed []reconcile.Clip, err error) {
	jobs, err := d.store.List(ctx, queue.Filter{BatchID: batchID})
	if err != nil {
		return nil, nil, fmt.Errorf("list batch jobs: %w", err)
	}
	byMedia := make(map[string][]*queue.Job, len(clips))
	for _, job := range jobs {
		byMedia[job.MediaID] = append(byMedia[job.MediaID], job)
	}

	for _, clip := range clips {
		ok, err := d.clipReady(ctx, byMedia[clip.MediaID])
		if err != nil {
			return nil, nil, err
		}
		clip.UnlinkedProxy = clip.OutputPath
		if ok {
			ready = append(ready, clip)
		} else {
			failed = append(failed, clip)
		}
	}
	return ready, failed, nil
}

func (d *Dispatcher) clipReady(ctx context.Context, jobs []*queue.Job) (bool, error) {
	if len(jobs) == 0 {
		return false, nil
	}
	for _, job := range jobs {
		if job.Status != queue.StatusCompleted {
			return false, nil
		}
	}
	if !jobs[0].IsChunk() {
		return true, nil
	}
	stitch, err := d.store.StitchState(ctx, jobs[0].ChunkGroup)
	if err != nil {
		return false, fmt.Errorf("read stitch state: %w", err)
	}
	return stitch != nil && stitch.Done() && !stitch.Failed(), nil
}
