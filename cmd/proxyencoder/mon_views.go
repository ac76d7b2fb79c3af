package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"proxyencoder/internal/queue"
)

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func formatStatusLabel(status queue.Status) string {
	s := strings.TrimSpace(string(status))
	if s == "" {
		return ""
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func ago(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return humanize.Time(t)
}

func buildBatchRows(batches []queue.BatchSummary) [][]string {
	rows := make([][]string, 0, len(batches))
	for _, b := range batches {
		progress := fmt.Sprintf("%d/%d (%.0f%%)", b.Completed, b.Total, b.Percent())
		state := "Running"
		switch {
		case b.Done() && b.Failed > 0:
			state = "Finished with failures"
		case b.Done():
			state = "Finished"
		case b.PendingStitches > 0 && b.Pending == 0 && b.Encoding == 0:
			state = "Stitching"
		case b.Encoding == 0:
			state = "Waiting"
		}
		rows = append(rows, []string{
			shortID(b.BatchID),
			b.Project + " / " + b.Timeline,
			b.QueueName,
			state,
			progress,
			fmt.Sprintf("%d", b.Failed),
			ago(b.CreatedAt),
		})
	}
	return rows
}

func buildJobRows(jobs []*queue.Job) [][]string {
	rows := make([][]string, 0, len(jobs))
	for _, job := range jobs {
		progress := "-"
		if job.Status == queue.StatusEncoding {
			progress = fmt.Sprintf("%.0f%%", job.ProgressPercent)
		}
		worker := job.Worker
		if worker == "" {
			worker = "-"
		}
		started := "-"
		if job.StartedAt != nil {
			started = ago(*job.StartedAt)
		}
		detail := job.ProgressMessage
		if job.Status == queue.StatusFailed {
			detail = job.ErrorMessage
		}
		rows = append(rows, []string{
			shortID(job.ID),
			job.Label(),
			formatStatusLabel(job.Status),
			progress,
			worker,
			fmt.Sprintf("%d", job.Attempts),
			started,
			truncate(detail, 48),
		})
	}
	return rows
}

func buildWorkerRows(workers []queue.Worker, queueName string) [][]string {
	rows := make([][]string, 0, len(workers))
	for _, w := range workers {
		queueLabel := w.QueueName
		if w.QueueName != queueName {
			queueLabel += " (other version)"
		}
		rows = append(rows, []string{
			w.Hostname,
			queueLabel,
			fmt.Sprintf("%d", w.Concurrency),
			w.Version,
			humanize.RelTime(w.StartedAt, time.Now(), "", ""),
			ago(w.LastSeen),
		})
	}
	return rows
}

func buildQueueStatusRows(stats queue.Stats) [][]string {
	counts := []struct {
		status queue.Status
		count  int
	}{
		{queue.StatusPending, stats.Pending},
		{queue.StatusEncoding, stats.Encoding},
		{queue.StatusCompleted, stats.Completed},
		{queue.StatusFailed, stats.Failed},
		{queue.StatusCanceled, stats.Canceled},
	}
	var rows [][]string
	for _, c := range counts {
		if c.count == 0 {
			continue
		}
		rows = append(rows, []string{formatStatusLabel(c.status), humanize.Comma(int64(c.count))})
	}
	return rows
}

func truncate(s string, limit int) string {
	s = strings.TrimSpace(strings.ReplaceAll(s, "\n", " "))
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-1]) + "…"
}
