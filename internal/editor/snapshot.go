package editor

import (
	"context"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"proxyencoder/internal/fileutil"
	"proxyencoder/internal/services"
)

// SnapshotFile is the YAML project export consumed by the snapshot driver.
type SnapshotFile struct {
	Project         string                     `yaml:"project"`
	CurrentTimeline string                     `yaml:"current_timeline"`
	Timelines       []SnapshotTimeline         `yaml:"timelines"`
	Media           map[string]*ClipProperties `yaml:"media"`
}

// SnapshotTimeline lists track items by media reference.
type SnapshotTimeline struct {
	Name   string           `yaml:"name"`
	Tracks [][]SnapshotItem `yaml:"tracks"`
}

// SnapshotItem references an entry in SnapshotFile.Media. Items without a
// media ID, or whose ID is absent from Media, are editor-internal.
type SnapshotItem struct {
	Name    string `yaml:"name"`
	MediaID string `yaml:"media_id,omitempty"`
}

// Snapshot serves a project from a YAML file and records proxy links back
// into it.
type Snapshot struct {
	path string

	mu   sync.Mutex
	data SnapshotFile
}

// OpenSnapshot loads the snapshot at path.
func OpenSnapshot(path string) (*Snapshot, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, services.Wrap(services.ErrNotFound, "editor", "open snapshot", path, err)
		}
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	var data SnapshotFile
	if err := yaml.Unmarshal(raw, &data); err != nil {
		return nil, services.Wrap(services.ErrValidation, "editor", "parse snapshot", path, err)
	}
	if data.Media == nil {
		data.Media = map[string]*ClipProperties{}
	}
	return &Snapshot{path: path, data: data}, nil
}

// Project returns the snapshot's project summary.
func (s *Snapshot) Project(ctx context.Context) (ProjectInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.data.Timelines))
	for _, tl := range s.data.Timelines {
		names = append(names, tl.Name)
	}
	current := s.data.CurrentTimeline
	if current == "" && len(names) > 0 {
		current = names[0]
	}
	return ProjectInfo{Name: s.data.Project, CurrentTimeline: current, Timelines: names}, nil
}

// Timeline resolves a timeline's track items against the media table.
func (s *Snapshot) Timeline(ctx context.Context, name string) (Timeline, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, tl := range s.data.Timelines {
		if tl.Name != name {
			continue
		}
		out := Timeline{Name: tl.Name, Tracks: make([][]TrackItem, len(tl.Tracks))}
		for i, track := range tl.Tracks {
			items := make([]TrackItem, 0, len(track))
			for _, item := range track {
				ti := TrackItem{Name: item.Name, MediaID: item.MediaID}
				if props, ok := s.data.Media[item.MediaID]; ok && props != nil && item.MediaID != "" {
					copied := *props
					ti.Properties = &copied
				}
				items = append(items, ti)
			}
			out.Tracks[i] = items
		}
		return out, nil
	}
	return Timeline{}, services.Wrap(services.ErrNotFound, "editor", "timeline", fmt.Sprintf("timeline %q not in snapshot", name), nil)
}

// LinkProxy records proxyPath against mediaID and persists the snapshot.
func (s *Snapshot) LinkProxy(ctx context.Context, mediaID, proxyPath string) error {
	info, err := os.Stat(proxyPath)
	if err != nil || info.IsDir() {
		return fmt.Errorf("%w: proxy file %s is not readable", ErrLinkRejected, proxyPath)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	props, ok := s.data.Media[mediaID]
	if !ok || props == nil {
		return services.Wrap(services.ErrNotFound, "editor", "link proxy", fmt.Sprintf("media %q not in snapshot", mediaID), nil)
	}
	prevProxy, prevPath := props.Proxy, props.ProxyMediaPath
	props.Proxy = props.Resolution
	if props.Proxy == "" {
		props.Proxy = "Online"
	}
	props.ProxyMediaPath = proxyPath
	if err := s.persistLocked(); err != nil {
		props.Proxy, props.ProxyMediaPath = prevProxy, prevPath
		return err
	}
	return nil
}

// Close is a no-op; every link is persisted immediately.
func (s *Snapshot) Close() error { return nil }

func (s *Snapshot) persistLocked() error {
	encoded, err := yaml.Marshal(&s.data)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := fileutil.WriteFileAtomic(s.path, encoded, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}

var _ Client = (*Snapshot)(nil)
