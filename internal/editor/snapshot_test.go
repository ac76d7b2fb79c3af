package editor_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"proxyencoder/internal/editor"
	"proxyencoder/internal/services"
	"proxyencoder/internal/testsupport"
)

func writeProject(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "project.yaml")
	snap := testsupport.NewSnapshot("Shoot", "").
		Media("m1", editor.ClipProperties{FilePath: "/media/A001.mov", ClipName: "A001.mov", Resolution: "3840x2160", Proxy: "None"}).
		Media("m2", editor.ClipProperties{FilePath: "/media/A002.mov", ClipName: "A002.mov", Proxy: "Offline"}).
		Timeline("Edit v1", []string{"m1", "title"}, []string{"m2"}).
		Timeline("Selects", []string{"m2"}).
		Build()
	testsupport.WriteSnapshot(t, path, snap)
	return path
}

func TestSnapshotProjectDefaultsCurrentTimeline(t *testing.T) {
	snap, err := editor.OpenSnapshot(writeProject(t))
	if err != nil {
		t.Fatalf("OpenSnapshot: %v", err)
	}
	project, err := snap.Project(context.Background())
	if err != nil {
		t.Fatalf("Project: %v", err)
	}
	if project.Name != "Shoot" || project.CurrentTimeline != "Edit v1" {
		t.Fatalf("unexpected project %+v", project)
	}
	if len(project.Timelines) != 2 {
		t.Fatalf("timelines = %v", project.Timelines)
	}
}

func TestSnapshotTimelineResolvesMedia(t *testing.T) {
	snap, err := editor.OpenSnapshot(writeProject(t))
	if err != nil {
		t.Fatalf("OpenSnapshot: %v", err)
	}
	tl, err := snap.Timeline(context.Background(), "Edit v1")
	if err != nil {
		t.Fatalf("Timeline: %v", err)
	}
	if len(tl.Tracks) != 2 {
		t.Fatalf("tracks = %d", len(tl.Tracks))
	}
	if tl.Tracks[0][0].Properties == nil || tl.Tracks[0][0].Properties.FilePath != "/media/A001.mov" {
		t.Fatalf("unexpected first item %+v", tl.Tracks[0][0])
	}
	if tl.Tracks[0][1].Properties != nil {
		t.Fatal("expected title to have no properties")
	}
	if _, err := snap.Timeline(context.Background(), "nope"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSnapshotLinkProxyPersists(t *testing.T) {
	path := writeProject(t)
	snap, err := editor.OpenSnapshot(path)
	if err != nil {
		t.Fatalf("OpenSnapshot: %v", err)
	}
	proxy := filepath.Join(t.TempDir(), "A001.mov")
	testsupport.WriteFile(t, proxy, 16)

	if err := snap.LinkProxy(context.Background(), "m1", proxy); err != nil {
		t.Fatalf("LinkProxy: %v", err)
	}
	saved := testsupport.ReadSnapshot(t, path)
	if got := saved.Media["m1"]; got.Proxy != "3840x2160" || got.ProxyMediaPath != proxy {
		t.Fatalf("persisted media = %+v", got)
	}

	if err := snap.LinkProxy(context.Background(), "m2", filepath.Join(t.TempDir(), "missing.mov")); !errors.Is(err, editor.ErrLinkRejected) {
		t.Fatalf("expected ErrLinkRejected for missing file, got %v", err)
	}
	if err := snap.LinkProxy(context.Background(), "m9", proxy); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found for unknown media, got %v", err)
	}
}

func TestOpenSnapshotMissingFile(t *testing.T) {
	if _, err := editor.OpenSnapshot(filepath.Join(t.TempDir(), "none.yaml")); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
