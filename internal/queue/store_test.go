package queue_test

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"proxyencoder/internal/queue"
	"proxyencoder/internal/testsupport"
)

func TestOpenCreatesSchemaAndReopens(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	if store.Backend() != "sqlite" {
		t.Fatalf("expected sqlite backend, got %q", store.Backend())
	}
	if store.Location() != cfg.Broker.SQLitePath {
		t.Fatalf("location = %q, want %q", store.Location(), cfg.Broker.SQLitePath)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	if err := reopened.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}

func TestOpenRejectsNewerSchema(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	db, err := sql.Open("sqlite", cfg.Broker.SQLitePath)
	if err != nil {
		t.Fatalf("open raw db: %v", err)
	}
	if _, err := db.Exec("UPDATE schema_version SET version = 99"); err != nil {
		t.Fatalf("bump version: %v", err)
	}
	_ = db.Close()

	if _, err := queue.Open(cfg); !errors.Is(err, queue.ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got %v", err)
	}
}

func TestEnqueueAndGetByID(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	job := testsupport.NewJob(cfg, "batch-1", "abc1234", "A001")
	job.HFlip = true
	job.StartTimecode = "01:00:00:00"
	stored := testsupport.MustEnqueue(t, store, job)
	if len(stored) != 1 || stored[0].ID == "" {
		t.Fatalf("expected one stored job with an id, got %#v", stored)
	}

	fetched, err := store.GetByID(ctx, stored[0].ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if fetched == nil {
		t.Fatal("expected job to be found")
	}
	if fetched.Status != queue.StatusPending {
		t.Fatalf("status = %q, want pending", fetched.Status)
	}
	if diff := cmp.Diff(cfg.Proxy, fetched.Settings); diff != "" {
		t.Fatalf("settings mismatch (-want +got):\n%s", diff)
	}
	if !fetched.HFlip || fetched.VFlip || fetched.StartTimecode != "01:00:00:00" || fetched.Frames != 250 {
		t.Fatalf("clip properties not persisted: %#v", fetched)
	}

	missing, err := store.GetByID(ctx, "does-not-exist")
	if err != nil {
		t.Fatalf("GetByID missing: %v", err)
	}
	if missing != nil {
		t.Fatalf("expected nil for missing job, got %#v", missing)
	}
}

func TestEnqueueRejectsJobsWithoutPaths(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	job := testsupport.NewJob(cfg, "batch-1", "q", "A001")
	job.OutputPath = ""
	if _, err := store.Enqueue(context.Background(), []*queue.Job{job}); err == nil {
		t.Fatal("expected error for job without output path")
	}
	stats, err := store.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Total != 0 {
		t.Fatalf("expected nothing enqueued, got %d", stats.Total)
	}
}

func TestClaimRespectsQueueNameAndOrder(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.MustEnqueue(t, store,
		testsupport.NewJob(cfg, "b", "other", "X001"),
		testsupport.NewJob(cfg, "b", "mine", "A001"),
		testsupport.NewJob(cfg, "b", "mine", "A002"),
	)

	first, err := store.Claim(ctx, "mine", "worker-1")
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if first == nil || first.ClipName != "A001" {
		t.Fatalf("expected A001 first, got %#v", first)
	}
	if first.Status != queue.StatusEncoding || first.Worker != "worker-1" || first.Attempts != 1 {
		t.Fatalf("unexpected claimed job state: %#v", first)
	}
	if first.StartedAt == nil || first.HeartbeatAt == nil {
		t.Fatal("expected started and heartbeat timestamps")
	}

	second, err := store.Claim(ctx, "mine", "worker-2")
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if second == nil || second.ClipName != "A002" {
		t.Fatalf("expected A002 second, got %#v", second)
	}

	none, err := store.Claim(ctx, "mine", "worker-1")
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if none != nil {
		t.Fatalf("expected empty queue, got %#v", none)
	}
}

func TestClaimIsExclusiveUnderConcurrency(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	const jobs = 8
	batch := make([]*queue.Job, 0, jobs)
	for i := 0; i < jobs; i++ {
		batch = append(batch, testsupport.NewJob(cfg, "b", "q", string(rune('A'+i))))
	}
	testsupport.MustEnqueue(t, store, batch...)

	var (
		mu      sync.Mutex
		claimed = map[string]int{}
		wg      sync.WaitGroup
	)
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(worker string) {
			defer wg.Done()
			for {
				job, err := store.Claim(ctx, "q", worker)
				if err != nil {
					t.Errorf("Claim: %v", err)
					return
				}
				if job == nil {
					return
				}
				mu.Lock()
				claimed[job.ID]++
				mu.Unlock()
			}
		}(string(rune('w' + w)))
	}
	wg.Wait()

	if len(claimed) != jobs {
		t.Fatalf("expected %d distinct claims, got %d", jobs, len(claimed))
	}
	for id, count := range claimed {
		if count != 1 {
			t.Fatalf("job %s claimed %d times", id, count)
		}
	}
}

func TestTransitionsRequireOwnership(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.MustEnqueue(t, store, testsupport.NewJob(cfg, "b", "q", "A001"))
	job, err := store.Claim(ctx, "q", "worker-1")
	if err != nil || job == nil {
		t.Fatalf("Claim: %v %#v", err, job)
	}

	if err := store.UpdateProgress(ctx, job.ID, "worker-2", 50, "half"); !errors.Is(err, queue.ErrNotClaimed) {
		t.Fatalf("expected ErrNotClaimed for foreign worker, got %v", err)
	}
	if err := store.UpdateProgress(ctx, job.ID, "worker-1", 150, "clamped"); err != nil {
		t.Fatalf("UpdateProgress: %v", err)
	}
	fetched, _ := store.GetByID(ctx, job.ID)
	if fetched.ProgressPercent != 100 || fetched.ProgressMessage != "clamped" {
		t.Fatalf("unexpected progress: %v %q", fetched.ProgressPercent, fetched.ProgressMessage)
	}
	if err := store.UpdateHeartbeat(ctx, job.ID, "worker-1"); err != nil {
		t.Fatalf("UpdateHeartbeat: %v", err)
	}
	if err := store.Complete(ctx, job.ID, "worker-1"); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if err := store.UpdateHeartbeat(ctx, job.ID, "worker-1"); !errors.Is(err, queue.ErrNotClaimed) {
		t.Fatalf("expected ErrNotClaimed after completion, got %v", err)
	}

	fetched, _ = store.GetByID(ctx, job.ID)
	if fetched.Status != queue.StatusCompleted || fetched.FinishedAt == nil {
		t.Fatalf("expected completed job with finish time, got %#v", fetched)
	}
}

func TestFailRequeueAndTerminal(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.MustEnqueue(t, store, testsupport.NewJob(cfg, "b", "q", "A001"))
	job, _ := store.Claim(ctx, "q", "w")
	if err := store.Fail(ctx, job.ID, "w", "ffmpeg exited 1", true); err != nil {
		t.Fatalf("Fail requeue: %v", err)
	}
	fetched, _ := store.GetByID(ctx, job.ID)
	if fetched.Status != queue.StatusPending || fetched.ErrorMessage != "ffmpeg exited 1" || fetched.Worker != "" {
		t.Fatalf("expected requeued job, got %#v", fetched)
	}

	job, _ = store.Claim(ctx, "q", "w")
	if job.Attempts != 2 {
		t.Fatalf("attempts = %d, want 2", job.Attempts)
	}
	if err := store.Fail(ctx, job.ID, "w", "source missing", false); err != nil {
		t.Fatalf("Fail: %v", err)
	}
	fetched, _ = store.GetByID(ctx, job.ID)
	if fetched.Status != queue.StatusFailed {
		t.Fatalf("expected failed, got %q", fetched.Status)
	}

	retried, err := store.RetryFailed(ctx)
	if err != nil {
		t.Fatalf("RetryFailed: %v", err)
	}
	if retried != 1 {
		t.Fatalf("retried = %d, want 1", retried)
	}
	fetched, _ = store.GetByID(ctx, job.ID)
	if fetched.Status != queue.StatusPending || fetched.Attempts != 0 || fetched.ErrorMessage != "" {
		t.Fatalf("expected fresh pending job, got %#v", fetched)
	}
}

func TestRetryFailedByID(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.MustEnqueue(t, store,
		testsupport.NewJob(cfg, "b", "q", "A001"),
		testsupport.NewJob(cfg, "b", "q", "A002"),
	)
	var ids []string
	for i := 0; i < 2; i++ {
		job, _ := store.Claim(ctx, "q", "w")
		if err := store.Fail(ctx, job.ID, "w", "boom", false); err != nil {
			t.Fatalf("Fail: %v", err)
		}
		ids = append(ids, job.ID)
	}

	retried, err := store.RetryFailed(ctx, ids[1])
	if err != nil {
		t.Fatalf("RetryFailed: %v", err)
	}
	if retried != 1 {
		t.Fatalf("retried = %d, want 1", retried)
	}
	failed, err := store.List(ctx, queue.Filter{Statuses: []queue.Status{queue.StatusFailed}})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(failed) != 1 || failed[0].ID != ids[0] {
		t.Fatalf("expected only %s to remain failed, got %#v", ids[0], failed)
	}
}

func TestReclaimStale(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.MustEnqueue(t, store,
		testsupport.NewJob(cfg, "b", "q", "A001"),
		testsupport.NewJob(cfg, "b", "q", "A002"),
	)
	first, _ := store.Claim(ctx, "q", "w")
	if err := store.Fail(ctx, first.ID, "w", "retry", true); err != nil {
		t.Fatalf("Fail: %v", err)
	}
	// A001 is claimed a second time and A002 once.
	again, _ := store.Claim(ctx, "q", "w")
	other, _ := store.Claim(ctx, "q", "w")
	if again.ID != first.ID || other == nil {
		t.Fatalf("unexpected claim order: %#v %#v", again, other)
	}

	reclaimed, failed, err := store.ReclaimStale(ctx, time.Now().Add(time.Hour), 2)
	if err != nil {
		t.Fatalf("ReclaimStale: %v", err)
	}
	if reclaimed != 1 || failed != 1 {
		t.Fatalf("reclaimed=%d failed=%d, want 1 and 1", reclaimed, failed)
	}
	fetched, _ := store.GetByID(ctx, first.ID)
	if fetched.Status != queue.StatusFailed {
		t.Fatalf("expected over-attempted job to fail, got %q", fetched.Status)
	}
	fetched, _ = store.GetByID(ctx, other.ID)
	if fetched.Status != queue.StatusPending {
		t.Fatalf("expected stale job back to pending, got %q", fetched.Status)
	}

	reclaimed, failed, err = store.ReclaimStale(ctx, time.Now().Add(-time.Hour), 2)
	if err != nil {
		t.Fatalf("ReclaimStale: %v", err)
	}
	if reclaimed != 0 || failed != 0 {
		t.Fatalf("expected no-op for old cutoff, got %d %d", reclaimed, failed)
	}
}

func TestReleaseWorker(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.MustEnqueue(t, store, testsupport.NewJob(cfg, "b", "q", "A001"))
	job, _ := store.Claim(ctx, "q", "w")
	released, err := store.ReleaseWorker(ctx, "w")
	if err != nil {
		t.Fatalf("ReleaseWorker: %v", err)
	}
	if released != 1 {
		t.Fatalf("released = %d, want 1", released)
	}
	fetched, _ := store.GetByID(ctx, job.ID)
	if fetched.Status != queue.StatusPending || fetched.Attempts != 0 || fetched.ErrorMessage != queue.WorkerStopReason {
		t.Fatalf("unexpected released job: %#v", fetched)
	}
}

func TestClaimStitchElectsOneWinner(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	var chunks []*queue.Job
	for i := 1; i <= 3; i++ {
		job := testsupport.NewJob(cfg, "b", "q", "LONG")
		job.ChunkGroup = "group-1"
		job.ChunkIndex = i
		job.ChunkCount = 3
		chunks = append(chunks, job)
	}
	testsupport.MustEnqueue(t, store, chunks...)

	for i := 0; i < 2; i++ {
		job, _ := store.Claim(ctx, "q", "w")
		if err := store.Complete(ctx, job.ID, "w"); err != nil {
			t.Fatalf("Complete: %v", err)
		}
	}
	won, err := store.ClaimStitch(ctx, "group-1", "w")
	if err != nil {
		t.Fatalf("ClaimStitch: %v", err)
	}
	if won {
		t.Fatal("stitch must wait for every chunk")
	}

	last, _ := store.Claim(ctx, "q", "w")
	if last.ChunkIndex != 3 {
		t.Fatalf("expected chunk 3 last, got %d", last.ChunkIndex)
	}
	if err := store.Complete(ctx, last.ID, "w"); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	summary, err := store.BatchSummary(ctx, "b")
	if err != nil {
		t.Fatalf("BatchSummary: %v", err)
	}
	if summary.PendingStitches != 1 || summary.Done() {
		t.Fatalf("expected batch waiting on stitch, got %#v", summary)
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := store.ClaimStitch(ctx, "group-1", "w")
			if err != nil {
				t.Errorf("ClaimStitch: %v", err)
				return
			}
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("expected exactly one stitch winner, got %d", wins)
	}

	if err := store.FinishStitch(ctx, "group-1", ""); err != nil {
		t.Fatalf("FinishStitch: %v", err)
	}
	stitch, err := store.StitchState(ctx, "group-1")
	if err != nil {
		t.Fatalf("StitchState: %v", err)
	}
	if !stitch.Done() || stitch.Failed() {
		t.Fatalf("expected successful stitch, got %#v", stitch)
	}
	summary, _ = store.BatchSummary(ctx, "b")
	if !summary.Done() || summary.Completed != 3 {
		t.Fatalf("expected finished batch, got %#v", summary)
	}

	group, err := store.ChunkGroup(ctx, "group-1")
	if err != nil {
		t.Fatalf("ChunkGroup: %v", err)
	}
	var indexes []int
	for _, job := range group {
		indexes = append(indexes, job.ChunkIndex)
	}
	if diff := cmp.Diff([]int{1, 2, 3}, indexes); diff != "" {
		t.Fatalf("chunk order mismatch (-want +got):\n%s", diff)
	}
}

func TestBatchSummaryCancelAndPurge(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.MustEnqueue(t, store,
		testsupport.NewJob(cfg, "b1", "q", "A001"),
		testsupport.NewJob(cfg, "b1", "q", "A002"),
	)
	testsupport.MustEnqueue(t, store, testsupport.NewJob(cfg, "b2", "q", "B001"))

	job, _ := store.Claim(ctx, "q", "w")
	if err := store.Complete(ctx, job.ID, "w"); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	canceled, err := store.CancelBatch(ctx, "b1")
	if err != nil {
		t.Fatalf("CancelBatch: %v", err)
	}
	if canceled != 1 {
		t.Fatalf("canceled = %d, want 1", canceled)
	}

	summary, err := store.BatchSummary(ctx, "b1")
	if err != nil {
		t.Fatalf("BatchSummary: %v", err)
	}
	want := queue.Stats{Total: 2, Completed: 1, Canceled: 1}
	if diff := cmp.Diff(want, summary.Stats); diff != "" {
		t.Fatalf("batch stats mismatch (-want +got):\n%s", diff)
	}
	if !summary.Done() || summary.Percent() != 100 {
		t.Fatalf("expected finished batch, got %#v", summary)
	}
	if summary.Project != "Project" || summary.QueueName != "q" {
		t.Fatalf("unexpected batch labels: %#v", summary)
	}

	batches, err := store.Batches(ctx, 0)
	if err != nil {
		t.Fatalf("Batches: %v", err)
	}
	if len(batches) != 2 || batches[0].BatchID != "b2" {
		t.Fatalf("expected newest batch first, got %#v", batches)
	}

	unknown, err := store.BatchSummary(ctx, "nope")
	if err != nil || unknown != nil {
		t.Fatalf("expected nil summary for unknown batch, got %#v %v", unknown, err)
	}

	purged, err := store.PurgeCompletedBefore(ctx, time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("PurgeCompletedBefore: %v", err)
	}
	if purged != 2 {
		t.Fatalf("purged = %d, want 2", purged)
	}

	purged, err = store.Purge(ctx)
	if err != nil {
		t.Fatalf("Purge: %v", err)
	}
	if purged != 1 {
		t.Fatalf("purged = %d, want 1", purged)
	}
	stats, _ := store.Stats(ctx)
	if stats.Total != 0 {
		t.Fatalf("expected empty store, got %#v", stats)
	}
}

func TestWorkerRegistry(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	if err := store.RegisterWorker(ctx, queue.Worker{ID: "w1", Hostname: "edit-01", QueueName: "abc1234", Concurrency: 2}); err != nil {
		t.Fatalf("RegisterWorker: %v", err)
	}
	if err := store.RegisterWorker(ctx, queue.Worker{ID: "w2", Hostname: "edit-02", QueueName: "def5678"}); err != nil {
		t.Fatalf("RegisterWorker: %v", err)
	}
	if err := store.RegisterWorker(ctx, queue.Worker{ID: "w1", Hostname: "edit-01", QueueName: "fff0000", Concurrency: 2}); err != nil {
		t.Fatalf("re-register: %v", err)
	}
	if err := store.TouchWorker(ctx, "w2"); err != nil {
		t.Fatalf("TouchWorker: %v", err)
	}

	workers, err := store.OnlineWorkers(ctx, time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("OnlineWorkers: %v", err)
	}
	var got []string
	for _, w := range workers {
		got = append(got, w.Hostname+"/"+w.QueueName)
	}
	if diff := cmp.Diff([]string{"edit-01/fff0000", "edit-02/def5678"}, got); diff != "" {
		t.Fatalf("workers mismatch (-want +got):\n%s", diff)
	}

	if err := store.RemoveWorker(ctx, "w1"); err != nil {
		t.Fatalf("RemoveWorker: %v", err)
	}
	future, err := store.OnlineWorkers(ctx, time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("OnlineWorkers: %v", err)
	}
	if len(future) != 0 {
		t.Fatalf("expected no workers seen in the future, got %#v", future)
	}
}

func TestParseStatus(t *testing.T) {
	if status, ok := queue.ParseStatus(" Encoding "); !ok || status != queue.StatusEncoding {
		t.Fatalf("ParseStatus = %q %v", status, ok)
	}
	if _, ok := queue.ParseStatus("ripping"); ok {
		t.Fatal("expected unknown status to be rejected")
	}
	if !queue.StatusCanceled.IsTerminal() || queue.StatusPending.IsTerminal() {
		t.Fatal("unexpected terminal classification")
	}
}
