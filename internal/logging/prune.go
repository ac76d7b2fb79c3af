package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// PruneLogs deletes files matching any of the glob patterns whose
// modification time is older than retentionDays. Paths in keep are never
// removed. It returns the number of files deleted; retentionDays <= 0
// disables pruning.
func PruneLogs(logger *slog.Logger, retentionDays int, keep []string, patterns ...string) int {
	if retentionDays <= 0 {
		return 0
	}
	if logger == nil {
		logger = NewNop()
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	protected := make(map[string]bool, len(keep))
	for _, path := range keep {
		protected[filepath.Clean(path)] = true
	}

	removed := 0
	for _, pattern := range patterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			logger.Debug("skipping bad retention pattern", String("pattern", pattern), Error(err))
			continue
		}
		for _, path := range matches {
			if protected[filepath.Clean(path)] {
				continue
			}
			info, err := os.Lstat(path)
			if err != nil || !info.Mode().IsRegular() || !info.ModTime().Before(cutoff) {
				continue
			}
			if err := os.Remove(path); err != nil {
				WarnWithContext(logger, "could not prune old log", "log_retention_failed",
					String("path", path),
					Error(err),
					String(FieldErrorHint, "check permissions on the log directory"),
					String(FieldImpact, "old log stays on disk"),
				)
				continue
			}
			removed++
		}
	}
	if removed > 0 {
		logger.Info("pruned old logs", Int("count", removed), Int("retention_days", retentionDays))
	}
	return removed
}
