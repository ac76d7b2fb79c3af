package queue

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

const jobColumns = "id, batch_id, queue_name, status, project, timeline, media_id, clip_name, source_path, output_path, encode_log_path, settings, resolution, fps, frames, start_timecode, hflip, vflip, chunk_group, chunk_index, chunk_count, chunk_in, chunk_out, progress_percent, progress_message, worker, attempts, error_message, heartbeat_at, started_at, finished_at, created_at, updated_at"

// timeLayout is fixed width so stored timestamps compare correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		job          Job
		statusStr    string
		settingsRaw  string
		hflip        int64
		vflip        int64
		heartbeatRaw sql.NullString
		startedRaw   sql.NullString
		finishedRaw  sql.NullString
		createdRaw   string
		updatedRaw   string
	)

	if err := scanner.Scan(
		&job.ID,
		&job.BatchID,
		&job.QueueName,
		&statusStr,
		&job.Project,
		&job.Timeline,
		&job.MediaID,
		&job.ClipName,
		&job.SourcePath,
		&job.OutputPath,
		&job.EncodeLogPath,
		&settingsRaw,
		&job.Resolution,
		&job.FPS,
		&job.Frames,
		&job.StartTimecode,
		&hflip,
		&vflip,
		&job.ChunkGroup,
		&job.ChunkIndex,
		&job.ChunkCount,
		&job.ChunkIn,
		&job.ChunkOut,
		&job.ProgressPercent,
		&job.ProgressMessage,
		&job.Worker,
		&job.Attempts,
		&job.ErrorMessage,
		&heartbeatRaw,
		&startedRaw,
		&finishedRaw,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	job.Status = Status(statusStr)
	job.HFlip = hflip != 0
	job.VFlip = vflip != 0
	if strings.TrimSpace(settingsRaw) != "" {
		if err := json.Unmarshal([]byte(settingsRaw), &job.Settings); err != nil {
			return nil, fmt.Errorf("decode settings for job %s: %w", job.ID, err)
		}
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		job.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		job.UpdatedAt = updated
	}
	job.HeartbeatAt = parseNullableTime(heartbeatRaw)
	job.StartedAt = parseNullableTime(startedRaw)
	job.FinishedAt = parseNullableTime(finishedRaw)
	return &job, nil
}

func formatTime(value time.Time) string {
	return value.UTC().Format(timeLayout)
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return formatTime(*value)
}

func parseNullableTime(raw sql.NullString) *time.Time {
	if !raw.Valid {
		return nil
	}
	parsed, err := parseTimeString(raw.String)
	if err != nil {
		return nil
	}
	return &parsed
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(timeLayout, value); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339Nano, value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}

func stringArgs[T ~string](values []T) []any {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = string(v)
	}
	return args
}
