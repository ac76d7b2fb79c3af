package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Enqueue inserts jobs in one transaction. Missing IDs are generated, the
// status is forced to pending and the stored copies are returned.
func (s *Store) Enqueue(ctx context.Context, jobs []*Job) ([]*Job, error) {
	if len(jobs) == 0 {
		return nil, nil
	}
	query := s.dialect.rebind(`INSERT INTO jobs (
            id, batch_id, queue_name, status, project, timeline, media_id, clip_name,
            source_path, output_path, encode_log_path, settings,
            resolution, fps, frames, start_timecode, hflip, vflip,
            chunk_group, chunk_index, chunk_count, chunk_in, chunk_out,
            created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	now := time.Now().UTC()
	stored := make([]*Job, 0, len(jobs))
	for i, job := range jobs {
		if job == nil {
			return nil, errors.New("enqueue: nil job")
		}
		if strings.TrimSpace(job.SourcePath) == "" || strings.TrimSpace(job.OutputPath) == "" {
			return nil, fmt.Errorf("enqueue %q: source and output paths are required", job.ClipName)
		}
		copyJob := *job
		if copyJob.ID == "" {
			copyJob.ID = uuid.NewString()
		}
		copyJob.Status = StatusPending
		// nanosecond offsets keep claim order equal to enqueue order
		copyJob.CreatedAt = now.Add(time.Duration(i))
		copyJob.UpdatedAt = copyJob.CreatedAt
		stored = append(stored, &copyJob)
	}

	err := s.retry(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()
		for _, job := range stored {
			settings, err := json.Marshal(job.Settings)
			if err != nil {
				return fmt.Errorf("encode settings: %w", err)
			}
			if _, err := tx.ExecContext(ctx, query,
				job.ID, job.BatchID, job.QueueName, string(job.Status),
				job.Project, job.Timeline, job.MediaID, job.ClipName,
				job.SourcePath, job.OutputPath, job.EncodeLogPath, string(settings),
				job.Resolution, job.FPS, job.Frames, job.StartTimecode,
				boolToInt(job.HFlip), boolToInt(job.VFlip),
				job.ChunkGroup, job.ChunkIndex, job.ChunkCount, job.ChunkIn, job.ChunkOut,
				formatTime(job.CreatedAt), formatTime(job.UpdatedAt),
			); err != nil {
				return err
			}
		}
		return tx.Commit()
	})
	if err != nil {
		return nil, fmt.Errorf("enqueue jobs: %w", err)
	}
	return stored, nil
}

// Claim atomically moves the oldest pending job of queueName to encoding
// under worker. It returns nil when nothing is pending.
func (s *Store) Claim(ctx context.Context, queueName, worker string) (*Job, error) {
	now := formatTime(time.Now())
	query := s.dialect.rebind(`UPDATE jobs
        SET status = ?, worker = ?, attempts = attempts + 1,
            started_at = ?, heartbeat_at = ?, updated_at = ?, finished_at = NULL,
            progress_percent = 0, progress_message = '', error_message = ''
        WHERE id = (
            SELECT id FROM jobs
            WHERE queue_name = ? AND status = ?
            ORDER BY created_at, chunk_index, id
            LIMIT 1` + s.dialect.lockClause() + `
        ) AND status = ?
        RETURNING ` + jobColumns)

	var job *Job
	err := s.retry(ctx, func() error {
		row := s.db.QueryRowContext(ctx, query,
			string(StatusEncoding), worker, now, now, now,
			queueName, string(StatusPending),
			string(StatusPending),
		)
		claimed, err := scanJob(row)
		if err != nil {
			return err
		}
		job = claimed
		return nil
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}
	return job, nil
}

// transition runs an UPDATE guarded by "status = encoding AND worker = ?"
// and reports ErrNotClaimed when the guard matched nothing.
func (s *Store) transition(ctx context.Context, op, setClause string, id, worker string, args ...any) error {
	query := `UPDATE jobs SET ` + setClause + ` WHERE id = ? AND status = ? AND worker = ?`
	args = append(args, id, string(StatusEncoding), worker)
	res, err := s.execResult(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if affected == 0 {
		return fmt.Errorf("%s %s: %w", op, id, ErrNotClaimed)
	}
	return nil
}

// UpdateProgress records encode progress for a claimed job.
func (s *Store) UpdateProgress(ctx context.Context, id, worker string, percent float64, message string) error {
	now := formatTime(time.Now())
	return s.transition(ctx, "update progress",
		"progress_percent = ?, progress_message = ?, heartbeat_at = ?, updated_at = ?",
		id, worker, clampPercent(percent), message, now, now)
}

// UpdateHeartbeat updates the last heartbeat timestamp for a claimed job.
// ErrNotClaimed tells the worker to abandon the encode.
func (s *Store) UpdateHeartbeat(ctx context.Context, id, worker string) error {
	now := formatTime(time.Now())
	return s.transition(ctx, "update heartbeat", "heartbeat_at = ?, updated_at = ?", id, worker, now, now)
}

// Complete marks a claimed job as finished successfully.
func (s *Store) Complete(ctx context.Context, id, worker string) error {
	now := formatTime(time.Now())
	return s.transition(ctx, "complete job",
		"status = ?, progress_percent = 100, progress_message = '', error_message = '', finished_at = ?, updated_at = ?",
		id, worker, string(StatusCompleted), now, now)
}

// Fail records an encode failure. With requeue the job returns to pending for
// another attempt; otherwise it is failed for good.
func (s *Store) Fail(ctx context.Context, id, worker, message string, requeue bool) error {
	now := formatTime(time.Now())
	if requeue {
		return s.transition(ctx, "requeue job",
			"status = ?, worker = '', error_message = ?, progress_percent = 0, progress_message = '', heartbeat_at = NULL, updated_at = ?",
			id, worker, string(StatusPending), message, now)
	}
	return s.transition(ctx, "fail job",
		"status = ?, error_message = ?, heartbeat_at = NULL, finished_at = ?, updated_at = ?",
		id, worker, string(StatusFailed), message, now, now)
}

// GetByID fetches a job. It returns nil when the job does not exist.
func (s *Store) GetByID(ctx context.Context, id string) (*Job, error) {
	jobs, err := s.queryJobs(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	if len(jobs) == 0 {
		return nil, nil
	}
	return jobs[0], nil
}

// List returns jobs matching filter, oldest first.
func (s *Store) List(ctx context.Context, filter Filter) ([]*Job, error) {
	var (
		where []string
		args  []any
	)
	if len(filter.Statuses) > 0 {
		where = append(where, "status IN ("+makePlaceholders(len(filter.Statuses))+")")
		args = append(args, stringArgs(filter.Statuses)...)
	}
	if filter.BatchID != "" {
		where = append(where, "batch_id = ?")
		args = append(args, filter.BatchID)
	}
	if filter.QueueName != "" {
		where = append(where, "queue_name = ?")
		args = append(args, filter.QueueName)
	}
	query := `SELECT ` + jobColumns + ` FROM jobs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at, clip_name, chunk_index, id"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}
	jobs, err := s.queryJobs(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, nil
}

// ChunkGroup returns the jobs of one chunked clip ordered by chunk index.
func (s *Store) ChunkGroup(ctx context.Context, group string) ([]*Job, error) {
	jobs, err := s.queryJobs(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE chunk_group = ? ORDER BY chunk_index`, group)
	if err != nil {
		return nil, fmt.Errorf("load chunk group: %w", err)
	}
	return jobs, nil
}

// ClaimStitch elects the worker that concatenates a chunk group. It returns
// true for exactly one caller, and only once every chunk is completed.
func (s *Store) ClaimStitch(ctx context.Context, group, worker string) (bool, error) {
	if strings.TrimSpace(group) == "" {
		return false, errors.New("claim stitch: empty chunk group")
	}
	res, err := s.execResult(ctx,
		`INSERT INTO stitches (chunk_group, worker, claimed_at)
         SELECT ?, ?, ?
         WHERE EXISTS (SELECT 1 FROM jobs WHERE chunk_group = ?)
           AND NOT EXISTS (SELECT 1 FROM jobs WHERE chunk_group = ? AND status <> ?)
         ON CONFLICT (chunk_group) DO NOTHING`,
		group, worker, formatTime(time.Now()),
		group,
		group, string(StatusCompleted),
	)
	if err != nil {
		return false, fmt.Errorf("claim stitch: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim stitch: %w", err)
	}
	return affected == 1, nil
}

// FinishStitch records the outcome of a stitch. An empty message means the
// chunks were concatenated into the output.
func (s *Store) FinishStitch(ctx context.Context, group, message string) error {
	now := formatTime(time.Now())
	res, err := s.execResult(ctx,
		`UPDATE stitches SET finished_at = ?, error_message = ? WHERE chunk_group = ?`,
		now, message, group)
	if err != nil {
		return fmt.Errorf("finish stitch: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return fmt.Errorf("finish stitch %s: %w", group, ErrNotClaimed)
	}
	return nil
}

// StitchState returns the stitch claim of a chunk group, or nil when no
// worker has claimed it yet.
func (s *Store) StitchState(ctx context.Context, group string) (*Stitch, error) {
	var (
		stitch      Stitch
		claimedRaw  string
		finishedRaw sql.NullString
		found       bool
	)
	err := s.retry(ctx, func() error {
		err := s.db.QueryRowContext(ctx,
			s.dialect.rebind(`SELECT chunk_group, worker, claimed_at, finished_at, error_message FROM stitches WHERE chunk_group = ?`),
			group,
		).Scan(&stitch.ChunkGroup, &stitch.Worker, &claimedRaw, &finishedRaw, &stitch.ErrorMessage)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load stitch: %w", err)
	}
	if !found {
		return nil, nil
	}
	if claimed, err := parseTimeString(claimedRaw); err == nil {
		stitch.ClaimedAt = claimed
	}
	stitch.FinishedAt = parseNullableTime(finishedRaw)
	return &stitch, nil
}

func clampPercent(value float64) float64 {
	switch {
	case value < 0:
		return 0
	case value > 100:
		return 100
	default:
		return value
	}
}
