package queue

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// RegisterWorker inserts or refreshes a worker registry row.
func (s *Store) RegisterWorker(ctx context.Context, worker Worker) error {
	if strings.TrimSpace(worker.ID) == "" {
		return fmt.Errorf("register worker: id is required")
	}
	now := time.Now()
	if worker.StartedAt.IsZero() {
		worker.StartedAt = now
	}
	if worker.Concurrency <= 0 {
		worker.Concurrency = 1
	}
	if err := s.exec(ctx,
		`INSERT INTO workers (id, hostname, queue_name, version, concurrency, started_at, last_seen)
         VALUES (?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT (id) DO UPDATE SET
             hostname = excluded.hostname,
             queue_name = excluded.queue_name,
             version = excluded.version,
             concurrency = excluded.concurrency,
             last_seen = excluded.last_seen`,
		worker.ID, worker.Hostname, worker.QueueName, worker.Version, worker.Concurrency,
		formatTime(worker.StartedAt), formatTime(now),
	); err != nil {
		return fmt.Errorf("register worker: %w", err)
	}
	return nil
}

// TouchWorker refreshes a worker's last_seen timestamp.
func (s *Store) TouchWorker(ctx context.Context, id string) error {
	if err := s.exec(ctx,
		`UPDATE workers SET last_seen = ? WHERE id = ?`, formatTime(time.Now()), id,
	); err != nil {
		return fmt.Errorf("touch worker: %w", err)
	}
	return nil
}

// RemoveWorker deletes a worker from the registry.
func (s *Store) RemoveWorker(ctx context.Context, id string) error {
	if err := s.exec(ctx, `DELETE FROM workers WHERE id = ?`, id); err != nil {
		return fmt.Errorf("remove worker: %w", err)
	}
	return nil
}

// OnlineWorkers lists workers seen at or after since, ordered by hostname.
func (s *Store) OnlineWorkers(ctx context.Context, since time.Time) ([]Worker, error) {
	query := s.dialect.rebind(`SELECT id, hostname, queue_name, version, concurrency, started_at, last_seen
        FROM workers WHERE last_seen >= ? ORDER BY hostname, id`)
	var workers []Worker
	err := s.retry(ctx, func() error {
		workers = nil
		rows, err := s.db.QueryContext(ctx, query, formatTime(since))
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var (
				w                   Worker
				startedRaw, seenRaw string
			)
			if err := rows.Scan(&w.ID, &w.Hostname, &w.QueueName, &w.Version, &w.Concurrency, &startedRaw, &seenRaw); err != nil {
				return err
			}
			if started, err := parseTimeString(startedRaw); err == nil {
				w.StartedAt = started
			}
			if seen, err := parseTimeString(seenRaw); err == nil {
				w.LastSeen = seen
			}
			workers = append(workers, w)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list workers: %w", err)
	}
	return workers, nil
}
