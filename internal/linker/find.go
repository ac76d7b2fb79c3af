package linker

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"

	"golang.org/x/text/cases"

	"proxyencoder/internal/editor"
	"proxyencoder/internal/logging"
)

func stem(path string) string {
	normalized := strings.ReplaceAll(path, "\\", "/")
	base := normalized[strings.LastIndex(normalized, "/")+1:]
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// FindAndLink searches every timeline, current first, for clips whose
// source file stem contains a proxy's stem (case-insensitively) and links
// the first match. Each proxy is linked at most once.
func FindAndLink(ctx context.Context, client editor.Client, proxyFiles []string, logger *slog.Logger) (Result, error) {
	logger = logging.NewComponentLogger(logger, "linker")
	fold := cases.Fold()
	var result Result

	project, err := client.Project(ctx)
	if err != nil {
		return result, fmt.Errorf("read project: %w", err)
	}
	timelines := editor.OrderedTimelines(project)
	if len(timelines) == 0 {
		return result, ErrNoTimelines
	}

	resolved := make(map[string]bool, len(proxyFiles))
	for _, name := range timelines {
		if len(resolved) == len(proxyFiles) {
			break
		}
		if err := ctx.Err(); err != nil {
			return result, err
		}
		tl, err := client.Timeline(ctx, name)
		if err != nil {
			return result, fmt.Errorf("read timeline %q: %w", name, err)
		}
		var items []editor.TrackItem
		for _, track := range tl.Tracks {
			items = append(items, track...)
		}
		logger.Info("searching timeline",
			logging.String("timeline", name),
			logging.Int("clips", len(items)),
			logging.Int("unresolved_proxies", len(proxyFiles)-len(resolved)),
		)

		for _, proxy := range proxyFiles {
			if resolved[proxy] {
				continue
			}
			needle := fold.String(stem(proxy))
			for _, item := range items {
				if item.Properties == nil || item.MediaID == "" {
					continue
				}
				if !strings.Contains(fold.String(stem(item.Properties.FilePath)), needle) {
					continue
				}
				resolved[proxy] = true
				if err := client.LinkProxy(ctx, item.MediaID, proxy); err != nil {
					if errors.Is(err, context.Canceled) {
						return result, err
					}
					logger.Error("matched but failed to link",
						logging.String("proxy", proxy),
						logging.String("source", item.Properties.FilePath),
						logging.Error(err),
					)
					result.Failed = append(result.Failed, proxy)
				} else {
					logger.Info("linked proxy",
						logging.String("proxy", proxy),
						logging.String("source", item.Properties.FilePath),
					)
					result.Linked = append(result.Linked, proxy)
				}
				break
			}
		}
	}

	for _, proxy := range proxyFiles {
		if !resolved[proxy] {
			result.Unmatched = append(result.Unmatched, proxy)
		}
	}
	if len(result.Failed) > 0 {
		logging.WarnWithContext(logger, "some proxies matched but could not be linked", "link_failures",
			logging.Int("count", len(result.Failed)),
			logging.String(logging.FieldErrorHint, "re-render the failed proxies"),
		)
	}
	return result, nil
}

// CollectProxyFiles walks dir and returns files whose lower-cased extension
// is in exts, in lexical order.
func CollectProxyFiles(dir string, exts []string) ([]string, error) {
	allowed := make(map[string]struct{}, len(exts))
	for _, ext := range exts {
		allowed[strings.ToLower(ext)] = struct{}{}
	}
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if _, ok := allowed[strings.ToLower(filepath.Ext(path))]; ok {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", dir, err)
	}
	return files, nil
}
