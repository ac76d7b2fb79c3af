package editor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"proxyencoder/internal/config"
	"proxyencoder/internal/services"
)

// Proxy status strings reported by the editor.
const (
	ProxyNone    = "None"
	ProxyOffline = "Offline"
)

// ErrLinkRejected reports that the editor refused to attach a proxy file.
var ErrLinkRejected = errors.New("editor rejected proxy link")

// ProjectInfo describes the open project.
type ProjectInfo struct {
	Name            string   `json:"name" yaml:"project"`
	CurrentTimeline string   `json:"current_timeline" yaml:"current_timeline"`
	Timelines       []string `json:"timelines" yaml:"-"`
}

// ClipProperties mirrors the media pool properties of a source clip.
type ClipProperties struct {
	FilePath       string `json:"file_path" yaml:"file_path"`
	ClipName       string `json:"clip_name" yaml:"clip_name"`
	FileName       string `json:"file_name,omitempty" yaml:"file_name,omitempty"`
	Resolution     string `json:"resolution,omitempty" yaml:"resolution,omitempty"`
	FPS            string `json:"fps,omitempty" yaml:"fps,omitempty"`
	StartTimecode  string `json:"start_tc,omitempty" yaml:"start_tc,omitempty"`
	Frames         int64  `json:"frames,omitempty" yaml:"frames,omitempty"`
	HFlip          bool   `json:"h_flip,omitempty" yaml:"h_flip,omitempty"`
	VFlip          bool   `json:"v_flip,omitempty" yaml:"v_flip,omitempty"`
	Proxy          string `json:"proxy" yaml:"proxy"`
	ProxyMediaPath string `json:"proxy_media_path,omitempty" yaml:"proxy_media_path,omitempty"`
}

// TrackItem is one clip placed on a video track. Properties is nil for
// editor-internal media such as titles and generators.
type TrackItem struct {
	Name       string          `json:"name" yaml:"name"`
	MediaID    string          `json:"media_id,omitempty" yaml:"media_id,omitempty"`
	Properties *ClipProperties `json:"properties,omitempty" yaml:"-"`
}

// Timeline holds video tracks in editor order; Tracks[0] is track 1.
type Timeline struct {
	Name   string        `json:"name" yaml:"name"`
	Tracks [][]TrackItem `json:"tracks" yaml:"tracks"`
}

// Client is the subset of the editor scripting API the tool relies on.
type Client interface {
	Project(ctx context.Context) (ProjectInfo, error)
	Timeline(ctx context.Context, name string) (Timeline, error)
	// LinkProxy attaches proxyPath to the media pool item. It returns
	// ErrLinkRejected when the editor refuses the file.
	LinkProxy(ctx context.Context, mediaID, proxyPath string) error
	Close() error
}

// Open returns the driver selected by editor.driver.
func Open(cfg *config.Config, logger *slog.Logger) (Client, error) {
	if cfg == nil {
		return nil, services.Wrap(services.ErrConfiguration, "editor", "open", "config is nil", nil)
	}
	switch cfg.Editor.Driver {
	case config.DriverBridge:
		return NewBridge(cfg.Editor.BridgeURL, cfg.Editor.BridgeToken,
			WithTimeout(time.Duration(cfg.Editor.RequestTimeout)*time.Second),
			WithLogger(logger),
		)
	case config.DriverSnapshot:
		return OpenSnapshot(cfg.Editor.SnapshotPath)
	default:
		return nil, services.Wrap(services.ErrConfiguration, "editor", "open", fmt.Sprintf("unknown driver %q", cfg.Editor.Driver), nil)
	}
}

// OrderedTimelines returns the project's timelines with the current one first.
func OrderedTimelines(project ProjectInfo) []string {
	ordered := make([]string, 0, len(project.Timelines)+1)
	if project.CurrentTimeline != "" {
		ordered = append(ordered, project.CurrentTimeline)
	}
	for _, name := range project.Timelines {
		if name == project.CurrentTimeline || name == "" {
			continue
		}
		ordered = append(ordered, name)
	}
	return ordered
}

// IsOnline reports whether a proxy status string means a proxy is attached
// and reachable.
func IsOnline(proxy string) bool {
	return proxy != "" && proxy != ProxyNone && proxy != ProxyOffline
}
