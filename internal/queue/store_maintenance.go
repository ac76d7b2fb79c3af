package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"time"
)

// ReclaimStale returns encoding jobs whose heartbeat is older than cutoff to
// pending. Jobs that already used maxAttempts claims are failed instead.
func (s *Store) ReclaimStale(ctx context.Context, cutoff time.Time, maxAttempts int) (reclaimed, failed int64, err error) {
	now := formatTime(time.Now())
	stale := formatTime(cutoff)

	res, err := s.execResult(ctx,
		`UPDATE jobs
         SET status = ?, error_message = 'Heartbeat lost after repeated attempts',
             heartbeat_at = NULL, finished_at = ?, updated_at = ?
         WHERE status = ? AND heartbeat_at IS NOT NULL AND heartbeat_at < ? AND attempts >= ?`,
		string(StatusFailed), now, now,
		string(StatusEncoding), stale, maxAttempts,
	)
	if err != nil {
		return 0, 0, fmt.Errorf("fail stale jobs: %w", err)
	}
	failed, _ = res.RowsAffected()

	res, err = s.execResult(ctx,
		`UPDATE jobs
         SET status = ?, worker = '', error_message = 'Reclaimed after lost heartbeat',
             progress_percent = 0, progress_message = '', heartbeat_at = NULL, updated_at = ?
         WHERE status = ? AND heartbeat_at IS NOT NULL AND heartbeat_at < ?`,
		string(StatusPending), now,
		string(StatusEncoding), stale,
	)
	if err != nil {
		return 0, failed, fmt.Errorf("reclaim stale jobs: %w", err)
	}
	reclaimed, _ = res.RowsAffected()
	return reclaimed, failed, nil
}

// ReleaseWorker hands every job still encoding under worker back to pending.
// The daemon calls it on shutdown.
func (s *Store) ReleaseWorker(ctx context.Context, worker string) (int64, error) {
	res, err := s.execResult(ctx,
		`UPDATE jobs
         SET status = ?, worker = '', error_message = ?, progress_percent = 0,
             progress_message = '', heartbeat_at = NULL, attempts = CASE WHEN attempts > 0 THEN attempts - 1 ELSE 0 END,
             updated_at = ?
         WHERE status = ? AND worker = ?`,
		string(StatusPending), WorkerStopReason, formatTime(time.Now()),
		string(StatusEncoding), worker,
	)
	if err != nil {
		return 0, fmt.Errorf("release worker jobs: %w", err)
	}
	return res.RowsAffected()
}

// RetryFailed moves failed jobs back to pending with a fresh attempt budget.
// With no ids every failed job is retried.
func (s *Store) RetryFailed(ctx context.Context, ids ...string) (int64, error) {
	query := `UPDATE jobs
        SET status = ?, worker = '', attempts = 0, error_message = '', progress_percent = 0,
            progress_message = '', heartbeat_at = NULL, started_at = NULL, finished_at = NULL, updated_at = ?
        WHERE status = ?`
	args := []any{string(StatusPending), formatTime(time.Now()), string(StatusFailed)}
	if len(ids) > 0 {
		query += " AND id IN (" + makePlaceholders(len(ids)) + ")"
		args = append(args, stringArgs(ids)...)
	}
	res, err := s.execResult(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("retry failed jobs: %w", err)
	}
	return res.RowsAffected()
}

// CancelBatch cancels every pending or encoding job of a batch. Workers
// encoding a canceled job notice on their next heartbeat.
func (s *Store) CancelBatch(ctx context.Context, batchID string) (int64, error) {
	now := formatTime(time.Now())
	res, err := s.execResult(ctx,
		`UPDATE jobs SET status = ?, heartbeat_at = NULL, finished_at = ?, updated_at = ?
         WHERE batch_id = ? AND status IN (?, ?)`,
		string(StatusCanceled), now, now,
		batchID, string(StatusPending), string(StatusEncoding),
	)
	if err != nil {
		return 0, fmt.Errorf("cancel batch: %w", err)
	}
	return res.RowsAffected()
}

// Purge removes every job and stitch claim.
func (s *Store) Purge(ctx context.Context) (int64, error) {
	res, err := s.execResult(ctx, `DELETE FROM jobs`)
	if err != nil {
		return 0, fmt.Errorf("purge jobs: %w", err)
	}
	if err := s.exec(ctx, `DELETE FROM stitches`); err != nil {
		return 0, fmt.Errorf("purge stitches: %w", err)
	}
	return res.RowsAffected()
}

// PurgeCompletedBefore removes completed and canceled jobs that finished
// before cutoff, along with stitch claims left without jobs.
func (s *Store) PurgeCompletedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.execResult(ctx,
		`DELETE FROM jobs WHERE status IN (?, ?) AND finished_at IS NOT NULL AND finished_at < ?`,
		string(StatusCompleted), string(StatusCanceled), formatTime(cutoff),
	)
	if err != nil {
		return 0, fmt.Errorf("purge completed jobs: %w", err)
	}
	if err := s.exec(ctx,
		`DELETE FROM stitches WHERE NOT EXISTS (SELECT 1 FROM jobs WHERE jobs.chunk_group = stitches.chunk_group)`,
	); err != nil {
		return 0, fmt.Errorf("purge stitches: %w", err)
	}
	return res.RowsAffected()
}

// Stats returns job counts per status.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	err := s.retry(ctx, func() error {
		stats = Stats{}
		rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM jobs GROUP BY status`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var (
				status string
				count  int
			)
			if err := rows.Scan(&status, &count); err != nil {
				return err
			}
			stats.add(Status(status), count)
		}
		return rows.Err()
	})
	if err != nil {
		return Stats{}, fmt.Errorf("queue stats: %w", err)
	}
	return stats, nil
}

// BatchSummary aggregates one batch. It returns nil for an unknown batch.
func (s *Store) BatchSummary(ctx context.Context, batchID string) (*BatchSummary, error) {
	summaries, err := s.batchSummaries(ctx, "WHERE batch_id = ?", batchID)
	if err != nil {
		return nil, err
	}
	if len(summaries) == 0 {
		return nil, nil
	}
	return &summaries[0], nil
}

// Batches aggregates every batch, newest first. limit <= 0 means no limit.
func (s *Store) Batches(ctx context.Context, limit int) ([]BatchSummary, error) {
	summaries, err := s.batchSummaries(ctx, "")
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(summaries) > limit {
		summaries = summaries[:limit]
	}
	return summaries, nil
}

func (s *Store) batchSummaries(ctx context.Context, where string, args ...any) ([]BatchSummary, error) {
	query := s.dialect.rebind(`SELECT batch_id, MIN(queue_name), MIN(project), MIN(timeline), status, COUNT(1),
            MIN(created_at), MAX(updated_at)
        FROM jobs ` + where + `
        GROUP BY batch_id, status`)

	var (
		order   []string
		byBatch map[string]*BatchSummary
	)
	err := s.retry(ctx, func() error {
		order = nil
		byBatch = make(map[string]*BatchSummary)
		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var (
				batchID, queueName, project, timeline, status string
				count                                         int
				createdRaw, updatedRaw                        string
			)
			if err := rows.Scan(&batchID, &queueName, &project, &timeline, &status, &count, &createdRaw, &updatedRaw); err != nil {
				return err
			}
			summary, ok := byBatch[batchID]
			if !ok {
				summary = &BatchSummary{BatchID: batchID, QueueName: queueName, Project: project, Timeline: timeline}
				byBatch[batchID] = summary
				order = append(order, batchID)
			}
			summary.add(Status(status), count)
			if created, err := parseTimeString(createdRaw); err == nil && (summary.CreatedAt.IsZero() || created.Before(summary.CreatedAt)) {
				summary.CreatedAt = created
			}
			if updated, err := parseTimeString(updatedRaw); err == nil && updated.After(summary.UpdatedAt) {
				summary.UpdatedAt = updated
			}
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("batch summary: %w", err)
	}

	out := make([]BatchSummary, 0, len(order))
	for _, batchID := range order {
		summary := byBatch[batchID]
		pending, err := s.pendingStitches(ctx, batchID)
		if err != nil {
			return nil, err
		}
		summary.PendingStitches = pending
		out = append(out, *summary)
	}
	slices.SortStableFunc(out, func(a, b BatchSummary) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return out, nil
}

// pendingStitches counts fully completed chunk groups of a batch whose
// stitch has not finished.
func (s *Store) pendingStitches(ctx context.Context, batchID string) (int, error) {
	var count int
	err := s.retry(ctx, func() error {
		err := s.db.QueryRowContext(ctx, s.dialect.rebind(`SELECT COUNT(1) FROM (
                SELECT chunk_group FROM jobs
                WHERE batch_id = ? AND chunk_group <> '' AND chunk_count > 1
                GROUP BY chunk_group
                HAVING SUM(CASE WHEN status <> ? THEN 1 ELSE 0 END) = 0
            ) g
            LEFT JOIN stitches st ON st.chunk_group = g.chunk_group
            WHERE st.finished_at IS NULL`),
			batchID, string(StatusCompleted),
		).Scan(&count)
		if errors.Is(err, sql.ErrNoRows) {
			count = 0
			return nil
		}
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("count pending stitches: %w", err)
	}
	return count, nil
}
