package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"gopkg.in/yaml.v3"

	"proxyencoder/internal/editor"
)

// SnapshotBuilder assembles an editor snapshot for tests.
type SnapshotBuilder struct {
	file editor.SnapshotFile
}

// NewSnapshot starts a snapshot for project whose current timeline is
// current.
func NewSnapshot(project, current string) *SnapshotBuilder {
	return &SnapshotBuilder{file: editor.SnapshotFile{
		Project:         project,
		CurrentTimeline: current,
		Media:           map[string]*editor.ClipProperties{},
	}}
}

// Media registers a media pool entry.
func (b *SnapshotBuilder) Media(id string, props editor.ClipProperties) *SnapshotBuilder {
	copied := props
	b.file.Media[id] = &copied
	return b
}

// Timeline appends a timeline whose tracks list media IDs. An ID with no
// media entry stands in for editor-internal media.
func (b *SnapshotBuilder) Timeline(name string, tracks ...[]string) *SnapshotBuilder {
	tl := editor.SnapshotTimeline{Name: name}
	for _, track := range tracks {
		items := make([]editor.SnapshotItem, 0, len(track))
		for _, id := range track {
			items = append(items, editor.SnapshotItem{Name: id, MediaID: id})
		}
		tl.Tracks = append(tl.Tracks, items)
	}
	b.file.Timelines = append(b.file.Timelines, tl)
	return b
}

// Build returns the assembled snapshot.
func (b *SnapshotBuilder) Build() editor.SnapshotFile {
	return b.file
}

// WriteSnapshot marshals snapshot to path.
func WriteSnapshot(t testing.TB, path string, snapshot editor.SnapshotFile) {
	t.Helper()
	data, err := yaml.Marshal(&snapshot)
	if err != nil {
		t.Fatalf("marshal snapshot: %v", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write snapshot: %v", err)
	}
}

// ReadSnapshot loads the snapshot at path, failing the test on error.
func ReadSnapshot(t testing.TB, path string) editor.SnapshotFile {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	var out editor.SnapshotFile
	if err := yaml.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal snapshot: %v", err)
	}
	return out
}
