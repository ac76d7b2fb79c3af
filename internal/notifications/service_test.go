package notifications_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"proxyencoder/internal/config"
	"proxyencoder/internal/notifications"
)

type posted struct {
	Title    string
	Tags     string
	Priority string
	Body     string
}

// ntfyRecorder is a fake ntfy topic that keeps every POST it receives.
type ntfyRecorder struct {
	mu    sync.Mutex
	posts []posted
}

func newTopic(t *testing.T, status int) (*ntfyRecorder, *config.Config) {
	t.Helper()
	rec := &ntfyRecorder{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		body, _ := io.ReadAll(r.Body)
		rec.mu.Lock()
		rec.posts = append(rec.posts, posted{
			Title:    r.Header.Get("Title"),
			Tags:     r.Header.Get("Tags"),
			Priority: r.Header.Get("Priority"),
			Body:     string(body),
		})
		rec.mu.Unlock()
		w.WriteHeader(status)
	}))
	t.Cleanup(server.Close)

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.RequestTimeout = 5
	return rec, &cfg
}

func (r *ntfyRecorder) all() []posted {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]posted(nil), r.posts...)
}

func TestNoTopicMeansSilence(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = ""
	ctx := context.Background()
	if err := notifications.NewService(&cfg).Publish(ctx, notifications.EventBatchCompleted, notifications.Payload{"completed": 3}); err != nil {
		t.Fatalf("Publish without topic: %v", err)
	}
	if err := notifications.NewService(nil).Publish(ctx, notifications.EventTest, nil); err != nil {
		t.Fatalf("Publish with nil config: %v", err)
	}
}

func TestPublishMessages(t *testing.T) {
	cases := map[string]struct {
		event   notifications.Event
		payload notifications.Payload
		want    posted
	}{
		"queued": {
			event:   notifications.EventBatchQueued,
			payload: notifications.Payload{"project": "Documentary", "timeline": "Assembly v2", "count": 12},
			want: posted{
				Title: "Proxy Encoder - Queued",
				Tags:  "proxyencoder,queue,started",
				Body:  "Started encoding job 'Documentary - Assembly v2' (12 proxies)",
			},
		},
		"completed": {
			event:   notifications.EventBatchCompleted,
			payload: notifications.Payload{"completed": 12},
			want: posted{
				Title: "Proxy Encoder - Complete",
				Tags:  "proxyencoder,encode,completed",
				Body:  "Completed encoding 12 proxies.",
			},
		},
		"failed without count": {
			event: notifications.EventBatchFailed,
			want: posted{
				Title:    "Proxy Encoder - Failures",
				Tags:     "proxyencoder,encode,failed",
				Priority: "high",
				Body:     "Some proxies failed to encode. Check `proxyencoder mon`.",
			},
		},
		"worker error": {
			event:   notifications.EventWorkerError,
			payload: notifications.Payload{"host": "edit-02", "context": "A001.mov", "error": "ffmpeg exited 1"},
			want: posted{
				Title:    "Proxy Encoder - Worker Error",
				Tags:     "proxyencoder,error,alert",
				Priority: "high",
				Body:     "Error on edit-02 with A001.mov: ffmpeg exited 1",
			},
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			rec, cfg := newTopic(t, http.StatusOK)
			if err := notifications.NewService(cfg).Publish(context.Background(), tc.event, tc.payload); err != nil {
				t.Fatalf("Publish: %v", err)
			}
			if diff := cmp.Diff([]posted{tc.want}, rec.all()); diff != "" {
				t.Fatalf("posts mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestPublishSurfacesRejectedTopic(t *testing.T) {
	_, cfg := newTopic(t, http.StatusForbidden)
	if err := notifications.NewService(cfg).Publish(context.Background(), notifications.EventTest, nil); err == nil {
		t.Fatal("expected error for 403 response")
	}
}

func TestPublishSkipsUnknownEvents(t *testing.T) {
	rec, cfg := newTopic(t, http.StatusOK)
	if err := notifications.NewService(cfg).Publish(context.Background(), notifications.Event("clip_renamed"), notifications.Payload{"value": "ignored"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if got := rec.all(); len(got) != 0 {
		t.Fatalf("expected no posts, got %+v", got)
	}
}
