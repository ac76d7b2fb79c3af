package linker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"proxyencoder/internal/editor"
	"proxyencoder/internal/logging"
	"proxyencoder/internal/reconcile"
)

// ErrNoTimelines reports a project without timelines to search.
var ErrNoTimelines = errors.New("no timelines in current project")

// Linker adapts an editor client to reconcile.Linker.
type Linker struct {
	client editor.Client
	logger *slog.Logger
}

// New returns a Linker that links through client.
func New(client editor.Client, logger *slog.Logger) *Linker {
	return &Linker{client: client, logger: logging.NewComponentLogger(logger, "linker")}
}

// LinkClips implements reconcile.Linker.
func (l *Linker) LinkClips(ctx context.Context, clips []reconcile.Clip) (linked, failed []reconcile.Clip) {
	return LinkClips(ctx, l.client, l.logger, clips)
}

// Relink implements reconcile.Linker.
func (l *Linker) Relink(ctx context.Context, clip reconcile.Clip, path string) error {
	return l.client.LinkProxy(ctx, clip.MediaID, path)
}

// LinkClips links each clip's UnlinkedProxy by media ID. A missing proxy file
// counts as a failure without contacting the editor. Linked clips come back
// with UnlinkedProxy moved into ProxyMediaPath.
func LinkClips(ctx context.Context, client editor.Client, logger *slog.Logger, clips []reconcile.Clip) (linked, failed []reconcile.Clip) {
	if logger == nil {
		logger = logging.NewNop()
	}
	for _, clip := range clips {
		proxy := clip.UnlinkedProxy
		if proxy == "" {
			continue
		}
		if _, err := os.Stat(proxy); err != nil {
			logger.Error("proxy media not found",
				logging.String(logging.FieldClip, clip.Name()),
				logging.String("path", proxy),
				logging.String(logging.FieldEventType, "link_missing_file"),
			)
			failed = append(failed, clip)
			continue
		}
		if err := client.LinkProxy(ctx, clip.MediaID, proxy); err != nil {
			logger.Error("failed to link proxy",
				logging.String(logging.FieldClip, clip.Name()),
				logging.String("path", proxy),
				logging.Error(err),
				logging.String(logging.FieldEventType, "link_failed"),
			)
			failed = append(failed, clip)
			continue
		}
		clip.ProxyMediaPath = proxy
		clip.UnlinkedProxy = ""
		logger.Info("linked proxy", logging.String(logging.FieldClip, clip.Name()))
		linked = append(linked, clip)
	}
	if len(linked)+len(failed) > 0 {
		logger.Info("link summary", logging.Int("linked", len(linked)), logging.Int("failed", len(failed)))
	}
	return linked, failed
}

// Result summarizes a FindAndLink pass. Paths are proxy file paths.
type Result struct {
	Linked    []string
	Failed    []string
	Unmatched []string
}

// Summary renders counts for CLI output.
func (r Result) Summary() string {
	return fmt.Sprintf("%d linked, %d failed, %d unmatched", len(r.Linked), len(r.Failed), len(r.Unmatched))
}
