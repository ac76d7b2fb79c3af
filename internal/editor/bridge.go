package editor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"proxyencoder/internal/logging"
	"proxyencoder/internal/services"
)

const (
	bridgeTokenHeader  = "X-Bridge-Token"
	defaultBridgeRate  = 20
	defaultBridgeBurst = 5
)

// Bridge talks to the companion script running inside the editor.
type Bridge struct {
	baseURL string
	token   string
	http    *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

// BridgeOption customizes a Bridge.
type BridgeOption func(*Bridge)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) BridgeOption {
	return func(b *Bridge) {
		if client != nil {
			b.http = client
		}
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(timeout time.Duration) BridgeOption {
	return func(b *Bridge) {
		if timeout > 0 {
			b.http.Timeout = timeout
		}
	}
}

// WithRateLimit paces requests so bulk linking does not starve the editor UI.
func WithRateLimit(perSecond float64, burst int) BridgeOption {
	return func(b *Bridge) {
		b.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) BridgeOption {
	return func(b *Bridge) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// NewBridge constructs a bridge client for baseURL.
func NewBridge(baseURL, token string, opts ...BridgeOption) (*Bridge, error) {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	parsed, err := url.Parse(base)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, services.Wrap(services.ErrConfiguration, "editor", "bridge", fmt.Sprintf("invalid bridge url %q", baseURL), err)
	}
	b := &Bridge{
		baseURL: base,
		token:   token,
		http:    &http.Client{Timeout: 10 * time.Second},
		limiter: rate.NewLimiter(defaultBridgeRate, defaultBridgeBurst),
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = logging.NewComponentLogger(b.logger, "editor-bridge")
	return b, nil
}

type bridgeProject struct {
	Name            string   `json:"name"`
	CurrentTimeline string   `json:"current_timeline"`
	Timelines       []string `json:"timelines"`
}

// Project returns the open project.
func (b *Bridge) Project(ctx context.Context) (ProjectInfo, error) {
	var payload bridgeProject
	if err := b.do(ctx, http.MethodGet, "/v1/project", nil, &payload); err != nil {
		return ProjectInfo{}, err
	}
	return ProjectInfo(payload), nil
}

// Timeline returns a timeline's video tracks.
func (b *Bridge) Timeline(ctx context.Context, name string) (Timeline, error) {
	var payload Timeline
	if err := b.do(ctx, http.MethodGet, "/v1/timelines/"+url.PathEscape(name), nil, &payload); err != nil {
		return Timeline{}, err
	}
	if payload.Name == "" {
		payload.Name = name
	}
	return payload, nil
}

// LinkProxy asks the editor to attach proxyPath to mediaID.
func (b *Bridge) LinkProxy(ctx context.Context, mediaID, proxyPath string) error {
	body := map[string]string{"path": proxyPath}
	err := b.do(ctx, http.MethodPost, "/v1/media/"+url.PathEscape(mediaID)+"/proxy", body, nil)
	if err != nil {
		return err
	}
	b.logger.Debug("proxy linked", logging.String("media_id", mediaID), logging.String("path", proxyPath))
	return nil
}

// Close releases idle connections.
func (b *Bridge) Close() error {
	b.http.CloseIdleConnections()
	return nil
}

type bridgeError struct {
	Error string `json:"error"`
}

func (b *Bridge) do(ctx context.Context, method, path string, body any, out any) error {
	if err := b.limiter.Wait(ctx); err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if b.token != "" {
		req.Header.Set(bridgeTokenHeader, b.token)
	}

	resp, err := b.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return services.Wrap(services.ErrEditorUnavailable, "editor", method+" "+path, "bridge unreachable; is the editor running with the bridge script loaded?", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		message := readBridgeError(resp.Body)
		switch resp.StatusCode {
		case http.StatusConflict, http.StatusUnprocessableEntity:
			return fmt.Errorf("%w: %s", ErrLinkRejected, message)
		case http.StatusNotFound:
			return services.Wrap(services.ErrNotFound, "editor", method+" "+path, message, nil)
		case http.StatusUnauthorized, http.StatusForbidden:
			return services.Wrap(services.ErrConfiguration, "editor", method+" "+path, "bridge rejected token", nil)
		case http.StatusServiceUnavailable:
			return services.Wrap(services.ErrEditorUnavailable, "editor", method+" "+path, message, nil)
		default:
			return services.Wrap(services.ErrExternalTool, "editor", method+" "+path, fmt.Sprintf("status %d: %s", resp.StatusCode, message), nil)
		}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return services.Wrap(services.ErrExternalTool, "editor", method+" "+path, "decode response", err)
	}
	return nil
}

func readBridgeError(r io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(r, 4096))
	var payload bridgeError
	if err := json.Unmarshal(data, &payload); err == nil && payload.Error != "" {
		return payload.Error
	}
	if text := strings.TrimSpace(string(data)); text != "" {
		return text
	}
	return "no detail"
}

var _ Client = (*Bridge)(nil)

