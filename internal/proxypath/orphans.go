package proxypath

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"proxyencoder/internal/fileutil"
)

// LinkedProxy is the minimal clip view orphan detection needs.
type LinkedProxy struct {
	MediaID        string
	SourcePath     string
	Proxy          string
	ProxyMediaPath string
}

// Orphan is a linked proxy living outside the location the current proxy
// root dictates.
type Orphan struct {
	MediaID string
	Old     string
	New     string
}

// DetectOrphans returns every linked or offline proxy whose path, minus its
// extension, differs from the expected stem under root. The new location
// keeps the old file's extension.
func DetectOrphans(clips []LinkedProxy, root string) []Orphan {
	var orphans []Orphan
	for _, clip := range clips {
		if clip.Proxy == "" || clip.Proxy == "None" || strings.TrimSpace(clip.ProxyMediaPath) == "" {
			continue
		}
		old := filepath.Clean(clip.ProxyMediaPath)
		oldExt := filepath.Ext(old)
		expected := ExpectedStem(ExpectedDir(root, clip.SourcePath), clip.SourcePath)
		if strings.TrimSuffix(old, oldExt) == expected {
			continue
		}
		orphans = append(orphans, Orphan{
			MediaID: clip.MediaID,
			Old:     old,
			New:     expected + oldExt,
		})
	}
	return orphans
}

// MoveOrphan relocates the orphan's file to its new path.
func MoveOrphan(o Orphan) error {
	if _, err := os.Stat(o.Old); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrOrphanMissing, o.Old)
		}
		return err
	}
	if err := fileutil.MoveFile(o.Old, o.New); err != nil {
		return fmt.Errorf("move %s -> %s: %w", o.Old, o.New, err)
	}
	return nil
}
