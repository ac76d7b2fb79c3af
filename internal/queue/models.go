package queue

import (
	"fmt"
	"strings"
	"time"

	"proxyencoder/internal/config"
)

// Status represents the lifecycle of an encode job.
type Status string

const (
	StatusPending   Status = "pending"
	StatusEncoding  Status = "encoding"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCanceled  Status = "canceled"
)

// WorkerStopReason is the error message recorded when a job is handed back
// because its worker shut down.
const WorkerStopReason = "Worker stopped"

var allStatuses = []Status{
	StatusPending,
	StatusEncoding,
	StatusCompleted,
	StatusFailed,
	StatusCanceled,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// AllStatuses returns every known status in lifecycle order.
func AllStatuses() []Status {
	out := make([]Status, len(allStatuses))
	copy(out, allStatuses)
	return out
}

// ParseStatus converts a raw string into a Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if _, ok := statusSet[normalized]; ok {
		return normalized, true
	}
	return "", false
}

// IsTerminal reports whether no worker will touch a job in this status again.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCanceled:
		return true
	default:
		return false
	}
}

// Job is one encode unit persisted in the queue. A chunked clip is stored as
// ChunkCount jobs sharing a ChunkGroup.
type Job struct {
	ID            string
	BatchID       string
	QueueName     string
	Status        Status
	Project       string
	Timeline      string
	MediaID       string
	ClipName      string
	SourcePath    string
	OutputPath    string
	EncodeLogPath string
	Settings      config.Proxy

	Resolution    string
	FPS           float64
	Frames        int64
	StartTimecode string
	HFlip         bool
	VFlip         bool

	ChunkGroup string
	ChunkIndex int
	ChunkCount int
	ChunkIn    string
	ChunkOut   string

	ProgressPercent float64
	ProgressMessage string
	Worker          string
	Attempts        int
	ErrorMessage    string

	HeartbeatAt *time.Time
	StartedAt   *time.Time
	FinishedAt  *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IsChunk reports whether the job renders one piece of a larger clip.
func (j *Job) IsChunk() bool {
	return j != nil && j.ChunkGroup != "" && j.ChunkCount > 1
}

// Label returns a human readable name for logs and tables.
func (j *Job) Label() string {
	if j == nil {
		return ""
	}
	name := j.ClipName
	if name == "" {
		name = j.SourcePath
	}
	if j.IsChunk() {
		return fmt.Sprintf("%s [%d/%d]", name, j.ChunkIndex, j.ChunkCount)
	}
	return name
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	Statuses  []Status
	BatchID   string
	QueueName string
	Limit     int
}

// Stats holds job counts per status across the whole store.
type Stats struct {
	Total     int
	Pending   int
	Encoding  int
	Completed int
	Failed    int
	Canceled  int
}

func (s *Stats) add(status Status, count int) {
	s.Total += count
	switch status {
	case StatusPending:
		s.Pending += count
	case StatusEncoding:
		s.Encoding += count
	case StatusCompleted:
		s.Completed += count
	case StatusFailed:
		s.Failed += count
	case StatusCanceled:
		s.Canceled += count
	}
}

// BatchSummary aggregates the jobs enqueued by one queue command.
type BatchSummary struct {
	BatchID   string
	QueueName string
	Project   string
	Timeline  string
	Stats
	// PendingStitches counts chunk groups whose chunks are all completed but
	// whose stitch has not finished yet.
	PendingStitches int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Done reports whether every job in the batch reached a terminal status.
func (b BatchSummary) Done() bool {
	return b.Total > 0 && b.Pending == 0 && b.Encoding == 0 && b.PendingStitches == 0
}

// Percent returns the share of terminal jobs in the batch.
func (b BatchSummary) Percent() float64 {
	if b.Total == 0 {
		return 0
	}
	return float64(b.Completed+b.Failed+b.Canceled) / float64(b.Total) * 100
}

// Stitch is the claim one worker holds to concatenate a chunk group.
type Stitch struct {
	ChunkGroup   string
	Worker       string
	ClaimedAt    time.Time
	FinishedAt   *time.Time
	ErrorMessage string
}

// Done reports whether the stitch finished, successfully or not.
func (s *Stitch) Done() bool {
	return s != nil && s.FinishedAt != nil
}

// Failed reports whether the stitch finished with an error.
func (s *Stitch) Failed() bool {
	return s.Done() && s.ErrorMessage != ""
}

// Worker is an encode daemon advertising itself in the registry.
type Worker struct {
	ID          string
	Hostname    string
	QueueName   string
	Version     string
	Concurrency int
	StartedAt   time.Time
	LastSeen    time.Time
}
