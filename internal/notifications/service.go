package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"proxyencoder/internal/buildinfo"
	"proxyencoder/internal/config"
)

const defaultServer = "https://ntfy.sh/"

// Event identifies a notification the queue command or a worker can publish.
type Event string

const (
	EventBatchQueued    Event = "batch_queued"
	EventBatchCompleted Event = "batch_completed"
	EventBatchFailed    Event = "batch_failed"
	EventWorkerError    Event = "worker_error"
	EventTest           Event = "test"
)

// Payload carries event fields. Keys are documented next to each event in
// format.
type Payload map[string]any

// Service defines the notification surface.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
// A bare topic name is published on ntfy.sh; a URL is used as is.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}
	endpoint := topic
	if !strings.Contains(topic, "://") {
		endpoint = defaultServer + strings.TrimPrefix(topic, "/")
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:  endpoint,
		client:    &http.Client{Timeout: timeout},
		userAgent: "proxyencoder/" + buildinfo.Version(),
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint  string
	client    *http.Client
	userAgent string
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	msg, ok := format(event, payload)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

// format renders an event. Payload keys:
//
//	batch_queued:    project, timeline, count
//	batch_completed: completed
//	batch_failed:    failed
//	worker_error:    host, context, error
func format(event Event, payload Payload) (message, bool) {
	switch event {
	case EventBatchQueued:
		label := strings.TrimSpace(payload.str("project") + " - " + payload.str("timeline"))
		body := fmt.Sprintf("Started encoding job '%s'", label)
		if count := payload.num("count"); count > 0 {
			body = fmt.Sprintf("%s (%d proxies)", body, count)
		}
		return message{
			title: "Proxy Encoder - Queued",
			body:  body,
			tags:  []string{"proxyencoder", "queue", "started"},
		}, true
	case EventBatchCompleted:
		return message{
			title: "Proxy Encoder - Complete",
			body:  fmt.Sprintf("Completed encoding %d proxies.", payload.num("completed")),
			tags:  []string{"proxyencoder", "encode", "completed"},
		}, true
	case EventBatchFailed:
		body := "Some proxies failed to encode. Check `proxyencoder mon`."
		if failed := payload.num("failed"); failed > 0 {
			body = fmt.Sprintf("%d proxies failed to encode. Check `proxyencoder mon`.", failed)
		}
		return message{
			title:    "Proxy Encoder - Failures",
			body:     body,
			tags:     []string{"proxyencoder", "encode", "failed"},
			priority: "high",
		}, true
	case EventWorkerError:
		var b strings.Builder
		b.WriteString("Error")
		if host := payload.str("host"); host != "" {
			b.WriteString(" on ")
			b.WriteString(host)
		}
		if label := payload.str("context"); label != "" {
			b.WriteString(" with ")
			b.WriteString(label)
		}
		b.WriteString(": ")
		if errText := payload.str("error"); errText != "" {
			b.WriteString(errText)
		} else {
			b.WriteString("unknown")
		}
		return message{
			title:    "Proxy Encoder - Worker Error",
			body:     b.String(),
			tags:     []string{"proxyencoder", "error", "alert"},
			priority: "high",
		}, true
	case EventTest:
		return message{
			title:    "Proxy Encoder - Test",
			body:     "Notification system test",
			tags:     []string{"proxyencoder", "test"},
			priority: "low",
		}, true
	default:
		return message{}, false
	}
}

func (p Payload) str(key string) string {
	if p == nil {
		return ""
	}
	switch v := p[key].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case error:
		return strings.TrimSpace(v.Error())
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func (p Payload) num(key string) int {
	if p == nil {
		return 0
	}
	switch v := p[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

func (n *ntfyService) send(ctx context.Context, data message) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", n.userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
