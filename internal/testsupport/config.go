package testsupport

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"proxyencoder/internal/config"
)

// ConfigOption adjusts the config built by NewConfig. base is the test's
// temp root.
type ConfigOption func(t testing.TB, base string, cfg *config.Config)

// NewConfig returns a config whose directories all live under one temp dir.
// The queue is a sqlite file and the editor is a YAML snapshot, so nothing
// touches the network.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()
	base := t.TempDir()
	under := func(parts ...string) string { return filepath.Join(append([]string{base}, parts...)...) }

	cfg := config.Default()
	cfg.App.CheckForUpdates = false
	cfg.Paths.ProxyPathRoot = under("proxies")
	cfg.Paths.EncodeLogDir = under("encode-logs")
	cfg.Paths.LogDir = under("logs")
	cfg.Paths.StateDir = under("state")
	cfg.Broker.Backend = config.BackendSQLite
	cfg.Broker.SQLitePath = under("state", "queue.db")
	cfg.Broker.PollInterval = 1
	cfg.Editor.Driver = config.DriverSnapshot
	cfg.Editor.SnapshotPath = under("project.yaml")
	cfg.Worker.HeartbeatInterval = 1
	cfg.Worker.HeartbeatTimeout = 5
	cfg.Worker.ProgressPersistInterval = 1

	for _, opt := range opts {
		opt(t, base, &cfg)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return &cfg
}

// WithChunking turns on chunked encodes for clips longer than threshold
// seconds, split into chunks of duration seconds.
func WithChunking(threshold, duration int) ConfigOption {
	return func(_ testing.TB, _ string, cfg *config.Config) {
		cfg.Chunking.Enabled = true
		cfg.Chunking.ChunkThreshold = threshold
		cfg.Chunking.ChunkDuration = duration
	}
}

// WithStubbedBinaries puts shell stubs for names (ffmpeg and ffprobe by
// default) first on PATH. Each stub answers -version and otherwise exits 0.
func WithStubbedBinaries(names ...string) ConfigOption {
	if len(names) == 0 {
		names = []string{"ffmpeg", "ffprobe"}
	}
	return func(t testing.TB, base string, _ *config.Config) {
		bin := filepath.Join(base, "bin")
		if err := os.MkdirAll(bin, 0o755); err != nil {
			t.Fatalf("create stub dir: %v", err)
		}
		for _, name := range names {
			script := fmt.Sprintf("#!/bin/sh\n[ \"$1\" = -version ] && echo '%s version 0.0-stub'\nexit 0\n", name)
			if err := os.WriteFile(filepath.Join(bin, name), []byte(script), 0o755); err != nil {
				t.Fatalf("write stub %s: %v", name, err)
			}
		}
		prev, had := os.LookupEnv("PATH")
		_ = os.Setenv("PATH", bin+string(os.PathListSeparator)+prev)
		t.Cleanup(func() {
			if had {
				_ = os.Setenv("PATH", prev)
			} else {
				_ = os.Unsetenv("PATH")
			}
		})
	}
}

// BaseDir returns the temp root behind a config from NewConfig.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}
