package reconcile

import (
	"path/filepath"
	"strings"

	"proxyencoder/internal/editor"
)

// State is a clip's proxy linkage as reported by the editor.
type State int

const (
	Unlinked State = iota
	Offline
	Linked
)

func (s State) String() string {
	switch s {
	case Offline:
		return "offline"
	case Linked:
		return "linked"
	default:
		return "unlinked"
	}
}

// Clip is one unique source media item from the timeline.
type Clip struct {
	MediaID        string
	ClipName       string
	FileName       string
	SourcePath     string
	Proxy          string
	ProxyMediaPath string

	ExpectedProxyDir string
	OutputPath       string
	UnlinkedProxy    string

	FPS           float64
	Frames        int64
	Resolution    string
	StartTimecode string
	HFlip         bool
	VFlip         bool
}

// State classifies the clip's Proxy string.
func (c Clip) State() State {
	switch c.Proxy {
	case "", editor.ProxyNone:
		return Unlinked
	case editor.ProxyOffline:
		return Offline
	default:
		return Linked
	}
}

// Name returns the best label for messages.
func (c Clip) Name() string {
	if c.ClipName != "" {
		return c.ClipName
	}
	if c.FileName != "" {
		return c.FileName
	}
	return filepath.Base(c.SourcePath)
}

// outputName is the filename whose stem the proxy output takes.
func (c Clip) outputName() string {
	if c.ClipName != "" {
		return c.ClipName
	}
	if c.FileName != "" {
		return c.FileName
	}
	normalized := strings.ReplaceAll(c.SourcePath, "\\", "/")
	return normalized[strings.LastIndex(normalized, "/")+1:]
}
