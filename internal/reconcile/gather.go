package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"proxyencoder/internal/config"
	"proxyencoder/internal/editor"
	"proxyencoder/internal/logging"
	"proxyencoder/internal/proxypath"
)

// Filters restricts which media is eligible for proxies.
type Filters struct {
	Extensions    []string
	UseFramerates bool
	Framerates    []float64
}

// FiltersFromConfig copies the filters section.
func FiltersFromConfig(cfg config.Filters) Filters {
	return Filters{
		Extensions:    cfg.ExtensionWhitelist,
		UseFramerates: cfg.UseFramerateWhitelist,
		Framerates:    cfg.FramerateWhitelist,
	}
}

func (f Filters) allowsExt(ext string) bool {
	ext = strings.ToLower(ext)
	for _, allowed := range f.Extensions {
		if strings.ToLower(allowed) == ext {
			return true
		}
	}
	return false
}

func (f Filters) allowsFPS(fps float64) bool {
	if !f.UseFramerates {
		return true
	}
	return slices.ContainsFunc(f.Framerates, func(allowed float64) bool {
		return math.Abs(allowed-fps) < 0.01
	})
}

// Collect walks the named timeline's video tracks and returns one Clip per
// unique, eligible source media item.
func Collect(ctx context.Context, client editor.Client, timeline string, filters Filters, root string, logger *slog.Logger) ([]Clip, error) {
	logger = logging.NewComponentLogger(logger, "gather")
	tl, err := client.Timeline(ctx, timeline)
	if err != nil {
		return nil, fmt.Errorf("read timeline %q: %w", timeline, err)
	}

	seen := make(map[string]struct{})
	var clips []Clip
	for i, track := range tl.Tracks {
		if len(track) == 0 {
			logger.Debug("video track empty", logging.Int("track", i+1))
			continue
		}
		for _, item := range track {
			if item.MediaID == "" || item.Properties == nil {
				logger.Debug("skipping internal media", logging.String("item", item.Name))
				continue
			}
			if _, dup := seen[item.MediaID]; dup {
				continue
			}
			seen[item.MediaID] = struct{}{}

			clip, ok := clipFromItem(item, filters, root, logger)
			if ok {
				clips = append(clips, clip)
			}
		}
	}
	logger.Info("gathered timeline media",
		logging.String("timeline", timeline),
		logging.Int("tracks", len(tl.Tracks)),
		logging.Int("clips", len(clips)),
	)
	return clips, nil
}

func clipFromItem(item editor.TrackItem, filters Filters, root string, logger *slog.Logger) (Clip, bool) {
	props := item.Properties
	source := strings.TrimSpace(props.FilePath)
	if source == "" {
		logger.Debug("skipping media without file path", logging.String("item", item.Name))
		return Clip{}, false
	}
	ext := filepath.Ext(strings.ReplaceAll(source, "\\", "/"))
	if !filters.allowsExt(ext) {
		logger.Info("ignoring non-whitelisted file extension",
			logging.String(logging.FieldClip, props.ClipName),
			logging.String("extension", ext),
		)
		return Clip{}, false
	}
	fps, _ := strconv.ParseFloat(strings.TrimSpace(props.FPS), 64)
	if !filters.allowsFPS(fps) {
		logger.Info("ignoring non-whitelisted framerate",
			logging.String(logging.FieldClip, props.ClipName),
			logging.Float64("fps", fps),
		)
		return Clip{}, false
	}

	clip := Clip{
		MediaID:          item.MediaID,
		ClipName:         props.ClipName,
		FileName:         props.FileName,
		SourcePath:       source,
		Proxy:            props.Proxy,
		ProxyMediaPath:   props.ProxyMediaPath,
		ExpectedProxyDir: proxypath.ExpectedDir(root, source),
		FPS:              fps,
		Frames:           props.Frames,
		Resolution:       props.Resolution,
		StartTimecode:    props.StartTimecode,
		HFlip:            props.HFlip,
		VFlip:            props.VFlip,
	}
	if clip.Proxy == "" {
		clip.Proxy = editor.ProxyNone
	}
	return clip, true
}
