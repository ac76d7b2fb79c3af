package reconcile_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"proxyencoder/internal/editor"
	"proxyencoder/internal/logging"
	"proxyencoder/internal/reconcile"
	"proxyencoder/internal/testsupport"
)

func TestCollectFiltersAndDeduplicates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "project.yaml")
	snap := testsupport.NewSnapshot("Shoot", "Edit").
		Media("m1", editor.ClipProperties{FilePath: "/Volumes/Media/A001.MOV", ClipName: "A001.MOV", FPS: "25", Proxy: "None", Frames: 100}).
		Media("m2", editor.ClipProperties{FilePath: "/Volumes/Media/A002.braw", ClipName: "A002.braw", FPS: "25"}).
		Media("m3", editor.ClipProperties{FilePath: "/Volumes/Media/A003.mp4", ClipName: "A003.mp4", FPS: "29.97", Proxy: "Offline"}).
		Media("m4", editor.ClipProperties{FilePath: "", ClipName: "Compound"}).
		Media("m5", editor.ClipProperties{FilePath: "/Volumes/Media/A005.mov", ClipName: "A005.mov", FPS: "59.94"}).
		Timeline("Edit", []string{"m1", "title", "m2"}, []string{}, []string{"m1", "m3", "m4", "m5"}).
		Build()
	testsupport.WriteSnapshot(t, path, snap)
	client, err := editor.OpenSnapshot(path)
	if err != nil {
		t.Fatalf("OpenSnapshot: %v", err)
	}

	filters := reconcile.Filters{
		Extensions:    []string{".mov", ".mp4"},
		UseFramerates: true,
		Framerates:    []float64{25, 29.97},
	}
	clips, err := reconcile.Collect(context.Background(), client, "Edit", filters, "/proxies", logging.NewNop())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	want := []reconcile.Clip{
		{
			MediaID: "m1", ClipName: "A001.MOV", SourcePath: "/Volumes/Media/A001.MOV", Proxy: "None",
			ExpectedProxyDir: filepath.Join("/proxies", "Volumes", "Media"), FPS: 25, Frames: 100,
		},
		{
			MediaID: "m3", ClipName: "A003.mp4", SourcePath: "/Volumes/Media/A003.mp4", Proxy: "Offline",
			ExpectedProxyDir: filepath.Join("/proxies", "Volumes", "Media"), FPS: 29.97,
		},
	}
	if diff := cmp.Diff(want, clips); diff != "" {
		t.Fatalf("Collect mismatch (-want +got):\n%s", diff)
	}
}

func TestCollectUnknownTimeline(t *testing.T) {
	path := filepath.Join(t.TempDir(), "project.yaml")
	testsupport.WriteSnapshot(t, path, testsupport.NewSnapshot("Shoot", "Edit").Timeline("Edit").Build())
	client, err := editor.OpenSnapshot(path)
	if err != nil {
		t.Fatalf("OpenSnapshot: %v", err)
	}
	if _, err := reconcile.Collect(context.Background(), client, "Missing", reconcile.Filters{}, "/proxies", logging.NewNop()); err == nil {
		t.Fatal("expected error for unknown timeline")
	}
}

func TestClipState(t *testing.T) {
	cases := map[string]reconcile.State{
		"":          reconcile.Unlinked,
		"None":      reconcile.Unlinked,
		"Offline":   reconcile.Offline,
		"1920x1080": reconcile.Linked,
	}
	for proxy, want := range cases {
		if got := (reconcile.Clip{Proxy: proxy}).State(); got != want {
			t.Errorf("State(%q) = %v, want %v", proxy, got, want)
		}
	}
}
