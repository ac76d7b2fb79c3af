// Package proxypath maps source media paths onto the proxy tree and finds
// proxy files that already exist there.
//
// Source paths come from the editor and may be POSIX, Windows drive or
// relative paths regardless of the host OS, so parsing accepts both
// separators. Output paths are built with the host's filepath rules.
package proxypath

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrOrphanMissing reports that an orphan's linked file no longer exists.
// A rename of a parent directory is the usual cause.
var ErrOrphanMissing = errors.New("orphaned proxy file missing")

// splitSource breaks a source path into its components after removing the
// anchor: a leading separator, a drive prefix such as "X:\", or the first
// component of a relative path.
func splitSource(source string) []string {
	normalized := strings.ReplaceAll(source, "\\", "/")
	parts := make([]string, 0, 8)
	for _, part := range strings.Split(normalized, "/") {
		if part != "" && part != "." {
			parts = append(parts, part)
		}
	}
	if len(parts) == 0 {
		return nil
	}
	if strings.HasPrefix(normalized, "/") {
		return parts
	}
	return parts[1:]
}

// baseName returns the final component of a source path.
func baseName(source string) string {
	normalized := strings.ReplaceAll(source, "\\", "/")
	if idx := strings.LastIndex(normalized, "/"); idx >= 0 {
		return normalized[idx+1:]
	}
	return normalized
}

func trimExt(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// ExpectedDir mirrors the source's directory structure under root:
//
//	ExpectedDir("/proxies", "/Volumes/Media/Shoot/A001.mov") == "/proxies/Volumes/Media/Shoot"
func ExpectedDir(root, source string) string {
	parts := splitSource(source)
	if len(parts) <= 1 {
		return filepath.Clean(root)
	}
	return filepath.Join(append([]string{root}, parts[:len(parts)-1]...)...)
}

// ExpectedStem joins dir with the source filename minus its extension.
func ExpectedStem(dir, source string) string {
	return filepath.Join(dir, trimExt(baseName(source)))
}

// OutputPath joins dir with the clip name's stem and ext.
func OutputPath(dir, clipName, ext string) string {
	return filepath.Join(dir, trimExt(baseName(clipName))+ext)
}

// NewestVariant returns the most recently modified file matching stem*.*
// and the number of matches. It returns "" when nothing matches.
func NewestVariant(stem string) (string, int, error) {
	dir, base := filepath.Split(stem)
	pattern := filepath.Join(dir, escapeGlob(base)+"*.*")
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return "", 0, fmt.Errorf("glob %s: %w", pattern, err)
	}
	type candidate struct {
		path  string
		mtime int64
	}
	candidates := make([]candidate, 0, len(matches))
	for _, match := range matches {
		info, err := os.Stat(match)
		if err != nil || info.IsDir() {
			continue
		}
		candidates = append(candidates, candidate{path: match, mtime: info.ModTime().UnixNano()})
	}
	if len(candidates) == 0 {
		return "", 0, nil
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].mtime != candidates[j].mtime {
			return candidates[i].mtime > candidates[j].mtime
		}
		return candidates[i].path < candidates[j].path
	})
	return filepath.Clean(candidates[0].path), len(candidates), nil
}

func escapeGlob(value string) string {
	var b strings.Builder
	for _, r := range value {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Increment returns path when nothing exists there, otherwise the first
// free name_N.ext for N = 1, 2, ... Paths in reserved count as taken.
func Increment(path string, reserved map[string]bool) string {
	taken := func(p string) bool { return reserved[p] || exists(p) }
	if !taken(path) {
		return path
	}
	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(path, ext)
	for n := 1; ; n++ {
		candidate := fmt.Sprintf("%s_%d%s", stem, n, ext)
		if !taken(candidate) {
			return candidate
		}
	}
}

func exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}
