package preflight_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"proxyencoder/internal/config"
	"proxyencoder/internal/preflight"
	"proxyencoder/internal/queue"
	"proxyencoder/internal/testsupport"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := preflight.CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := preflight.CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := preflight.CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestRunAllReportsMissingBinaries(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Worker.FFmpegBinary = "definitely-not-ffmpeg"
	cfg.Worker.FFprobeBinary = "definitely-not-ffprobe"
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}

	results := preflight.RunAll(context.Background(), cfg)
	failed := preflight.Failed(results)
	var names []string
	for _, r := range failed {
		names = append(names, r.Name)
	}
	if diff := cmp.Diff([]string{"FFmpeg", "FFprobe"}, names); diff != "" {
		t.Fatalf("failed checks mismatch (-want +got):\n%s", diff)
	}
}

func TestRunAllNilConfig(t *testing.T) {
	if results := preflight.RunAll(context.Background(), nil); results != nil {
		t.Fatalf("expected nil results, got %#v", results)
	}
}

func TestCheckEditorSnapshot(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Editor.Driver = config.DriverSnapshot
	snapshot := testsupport.NewSnapshot("Documentary", "Assembly").
		Timeline("Assembly", []string{"m1"}).
		Build()
	testsupport.WriteSnapshot(t, cfg.Editor.SnapshotPath, snapshot)

	result := preflight.CheckEditor(context.Background(), cfg)
	if !result.Passed {
		t.Fatalf("expected editor check to pass, got %q", result.Detail)
	}
}

func TestCheckEditorMissingSnapshot(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Editor.Driver = config.DriverSnapshot
	cfg.Editor.SnapshotPath = filepath.Join(t.TempDir(), "missing.yaml")

	result := preflight.CheckEditor(context.Background(), cfg)
	if result.Passed {
		t.Fatal("expected editor check to fail for missing snapshot")
	}
}

func TestCheckWorkers(t *testing.T) {
	workers := []queue.Worker{
		{ID: "a", Hostname: "edit-01", QueueName: "abc1234"},
		{ID: "b", Hostname: "render-02", QueueName: "fff0000"},
		{ID: "c", Hostname: "render-01", QueueName: "fff0000"},
		{ID: "d", Hostname: "render-01", QueueName: "eee0000"},
	}

	report := preflight.CheckWorkers(workers, "abc1234", true)
	if len(report.Compatible) != 1 || report.Compatible[0].ID != "a" {
		t.Fatalf("unexpected compatible workers: %#v", report.Compatible)
	}
	if diff := cmp.Diff([]string{"render-01", "render-02"}, report.IncompatibleHosts); diff != "" {
		t.Fatalf("incompatible hosts mismatch (-want +got):\n%s", diff)
	}
	if report.AllIncompatible() || report.None() {
		t.Fatal("expected a usable worker pool")
	}

	report = preflight.CheckWorkers(workers[1:], "abc1234", true)
	if !report.AllIncompatible() {
		t.Fatal("expected every worker to be incompatible")
	}

	report = preflight.CheckWorkers(workers[1:], "abc1234", false)
	if len(report.Compatible) != 3 || report.AllIncompatible() {
		t.Fatalf("unconstrained routing should accept every worker: %#v", report)
	}

	if !preflight.CheckWorkers(nil, "abc1234", true).None() {
		t.Fatal("expected empty pool to report None")
	}
}
