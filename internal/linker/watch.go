package linker

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"proxyencoder/internal/logging"
)

// Watch calls fn for every file under dir with an allowed extension once it
// has stopped changing for settle. New sub-directories are watched as they
// appear. Watch blocks until ctx is cancelled.
func Watch(ctx context.Context, dir string, exts []string, settle time.Duration, fn func(path string), logger *slog.Logger) error {
	logger = logging.NewComponentLogger(logger, "link-watch")
	if settle <= 0 {
		settle = 2 * time.Second
	}
	allowed := make(map[string]struct{}, len(exts))
	for _, ext := range exts {
		allowed[strings.ToLower(ext)] = struct{}{}
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	pending := make(map[string]time.Time)
	allowedFile := func(path string) bool {
		_, ok := allowed[strings.ToLower(filepath.Ext(path))]
		return ok
	}
	// addTree watches root and its sub-directories. With queueExisting set,
	// files already inside are queued too.
	addTree := func(root string, queueExisting bool) {
		_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if !d.IsDir() {
				if queueExisting && allowedFile(path) {
					pending[path] = time.Now()
				}
				return nil
			}
			if path != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			if err := watcher.Add(path); err != nil {
				logger.Warn("failed to watch directory", logging.String("path", path), logging.Error(err))
			}
			return nil
		})
	}
	if _, err := os.Stat(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	addTree(dir, false)
	logger.Info("watching for new proxies", logging.String("dir", dir))

	ticker := time.NewTicker(settle / 4)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			info, err := os.Stat(event.Name)
			if err != nil {
				continue
			}
			if info.IsDir() {
				if event.Op&fsnotify.Create != 0 {
					addTree(event.Name, true)
				}
				continue
			}
			if !allowedFile(event.Name) {
				continue
			}
			pending[event.Name] = time.Now()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watcher error", logging.Error(err))
		case now := <-ticker.C:
			for path, last := range pending {
				if now.Sub(last) < settle {
					continue
				}
				delete(pending, path)
				fn(path)
			}
		}
	}
}
