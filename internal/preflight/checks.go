package preflight

import (
	"context"
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"proxyencoder/internal/config"
	"proxyencoder/internal/deps"
	"proxyencoder/internal/editor"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckSystemDeps evaluates the binaries a worker shells out to. Both the
// worker daemon and the status command use this list.
func CheckSystemDeps(ctx context.Context, cfg *config.Config) []deps.Status {
	return deps.Check(ctx,
		deps.Tool{Name: "FFmpeg", Binary: cfg.Worker.FFmpegBinary, Purpose: "encodes proxies"},
		deps.Tool{Name: "FFprobe", Binary: cfg.Worker.FFprobeBinary, Purpose: "probes clips lacking a frame count"},
	)
}

// CheckEditor opens the configured editor driver and asks for the current
// project. A short timeout keeps an unresponsive bridge from stalling the CLI.
func CheckEditor(ctx context.Context, cfg *config.Config) Result {
	name := fmt.Sprintf("Editor (%s)", cfg.Editor.Driver)
	client, err := editor.Open(cfg, nil)
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	defer client.Close()

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	project, err := client.Project(checkCtx)
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	if project.Name == "" {
		return Result{Name: name, Detail: "no project open"}
	}
	detail := fmt.Sprintf("project %q", project.Name)
	if project.CurrentTimeline != "" {
		detail = fmt.Sprintf("%s, timeline %q", detail, project.CurrentTimeline)
	}
	return Result{Name: name, Passed: true, Detail: detail}
}
