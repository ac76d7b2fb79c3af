package testsupport

import (
	"context"
	"path/filepath"
	"testing"

	"proxyencoder/internal/config"
	"proxyencoder/internal/queue"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewJob returns an unchunked pending job for queueName writing into the
// config's proxy root.
func NewJob(cfg *config.Config, batchID, queueName, clipName string) *queue.Job {
	return &queue.Job{
		BatchID:    batchID,
		QueueName:  queueName,
		Project:    "Project",
		Timeline:   "Timeline 1",
		MediaID:    "media-" + clipName,
		ClipName:   clipName,
		SourcePath: filepath.Join(BaseDir(cfg), "footage", clipName+".mp4"),
		OutputPath: filepath.Join(cfg.Paths.ProxyPathRoot, clipName+cfg.Proxy.Ext),
		Settings:   cfg.Proxy,
		Resolution: "1920x1080",
		FPS:        25,
		Frames:     250,
	}
}

// MustEnqueue enqueues jobs and returns the stored copies.
func MustEnqueue(t testing.TB, store *queue.Store, jobs ...*queue.Job) []*queue.Job {
	t.Helper()

	stored, err := store.Enqueue(context.Background(), jobs)
	if err != nil {
		t.Fatalf("store.Enqueue: %v", err)
	}
	return stored
}
