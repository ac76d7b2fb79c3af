package deps_test

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/google/go-cmp/cmp"

	"proxyencoder/internal/deps"
)

func writeStub(t *testing.T, dir, name, script string, mode os.FileMode) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(script), mode); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	return path
}

func TestCheckReportsVersionAndMissing(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell stubs")
	}
	dir := t.TempDir()
	ffmpeg := writeStub(t, dir, "ffmpeg", "#!/bin/sh\necho 'ffmpeg version 7.1 Copyright (c) 2000-2024'\necho 'built with gcc'\n", 0o755)

	got := deps.Check(context.Background(),
		deps.Tool{Name: "FFmpeg", Binary: ffmpeg, Purpose: "encode"},
		deps.Tool{Name: "FFprobe", Binary: "clearly-not-present-ffprobe"},
		deps.Tool{Name: "Extra", Binary: "another-missing-binary", Optional: true},
		deps.Tool{Name: "Blank"},
	)

	want := []deps.Status{
		{Name: "FFmpeg", Command: ffmpeg, Purpose: "encode", Available: true, Version: "ffmpeg version 7.1 Copyright (c) 2000-2024"},
		{Name: "FFprobe", Command: "clearly-not-present-ffprobe", Detail: `binary "clearly-not-present-ffprobe" not found on PATH`},
		{Name: "Extra", Command: "another-missing-binary", Optional: true, Detail: `binary "another-missing-binary" not found on PATH`},
		{Name: "Blank", Detail: "command not configured"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("statuses mismatch (-want +got):\n%s", diff)
	}

	var names []string
	for _, st := range deps.Missing(got) {
		names = append(names, st.Name)
	}
	if diff := cmp.Diff([]string{"FFprobe", "Blank"}, names); diff != "" {
		t.Fatalf("missing mismatch (-want +got):\n%s", diff)
	}
}

func TestCheckToleratesFailingVersionProbe(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell stubs")
	}
	stub := writeStub(t, t.TempDir(), "ffprobe", "#!/bin/sh\nexit 3\n", 0o755)
	got := deps.Check(context.Background(), deps.Tool{Name: "FFprobe", Binary: stub})
	if !got[0].Available || got[0].Version != "" {
		t.Fatalf("expected available tool without version, got %+v", got[0])
	}
}

func TestResolve(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission bits")
	}
	dir := t.TempDir()
	onPath := writeStub(t, dir, "ffmpeg", "#!/bin/sh\nexit 0\n", 0o755)
	plain := writeStub(t, dir, "notes", "data", 0o644)
	t.Setenv("PATH", dir)

	if got, err := deps.Resolve("ffmpeg"); err != nil || got != onPath {
		t.Fatalf("Resolve(ffmpeg) = %q, %v; want %q", got, err, onPath)
	}
	for _, bad := range []string{plain, dir, filepath.Join(dir, "missing"), "  "} {
		if _, err := deps.Resolve(bad); err == nil {
			t.Fatalf("Resolve(%q) should fail", bad)
		}
	}
}
