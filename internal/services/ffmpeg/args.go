package ffmpeg

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"proxyencoder/internal/config"
)

// EncodeRequest describes one proxy render.
type EncodeRequest struct {
	Source   string
	Output   string
	LogPath  string
	Settings config.Proxy

	// Resolution is the source frame size as "WIDTHxHEIGHT".
	Resolution    string
	FPS           float64
	Frames        int64
	StartTimecode string
	HFlip         bool
	VFlip         bool

	// ChunkIn and ChunkOut bound a chunk render as HH:MM:SS.mmm.
	ChunkIn  string
	ChunkOut string
	// FirstChunk marks the chunk whose timecode the stitched output keeps.
	FirstChunk bool
}

// IsChunk reports whether the request renders a time range.
func (r EncodeRequest) IsChunk() bool {
	return r.ChunkIn != "" && r.ChunkOut != ""
}

// BuildArgs returns the ffmpeg arguments for req, excluding the binary.
func BuildArgs(req EncodeRequest) []string {
	s := req.Settings
	args := []string{"-y"}
	args = append(args, s.MiscArgs...)
	if req.IsChunk() {
		args = append(args, "-ss", req.ChunkIn, "-to", req.ChunkOut)
	}
	args = append(args,
		"-i", req.Source,
		"-c:v", s.Codec,
		"-profile:v", s.Profile,
		"-vsync", "-1",
		"-vf", videoFilter(req),
		"-c:a", s.AudioCodec,
		"-ar", strconv.Itoa(s.AudioSampleRate),
	)
	if tc := strings.TrimSpace(req.StartTimecode); tc != "" && (!req.IsChunk() || req.FirstChunk) {
		args = append(args, "-timecode", tc)
	}
	logLevel := s.FFmpegLogLevel
	if logLevel == "" {
		logLevel = "error"
	}
	args = append(args,
		"-loglevel", logLevel,
		"-progress", "pipe:1",
		"-nostats",
		req.Output,
	)
	return args
}

func videoFilter(req EncodeRequest) string {
	height := req.Settings.VerticalRes
	filters := []string{fmt.Sprintf("scale=%d:%d", ScaledWidth(req.Resolution, height), height)}
	if req.HFlip {
		filters = append(filters, "hflip")
	}
	if req.VFlip {
		filters = append(filters, "vflip")
	}
	if req.Settings.PixFmt != "" {
		filters = append(filters, "format="+req.Settings.PixFmt)
	}
	return strings.Join(filters, ",")
}

// ScaledWidth keeps the source aspect ratio at the target height and rounds
// to an even width. It returns -2 (let ffmpeg pick an even width) when the
// source resolution is unknown.
func ScaledWidth(resolution string, height int) int {
	width, srcHeight, ok := ParseResolution(resolution)
	if !ok || height <= 0 {
		return -2
	}
	scaled := float64(width) * float64(height) / float64(srcHeight)
	even := int(math.Round(scaled/2)) * 2
	if even < 2 {
		return 2
	}
	return even
}

// ParseResolution splits "1920x1080" into its dimensions.
func ParseResolution(value string) (width, height int, ok bool) {
	left, right, found := strings.Cut(strings.ToLower(strings.TrimSpace(value)), "x")
	if !found {
		return 0, 0, false
	}
	w, errW := strconv.Atoi(strings.TrimSpace(left))
	h, errH := strconv.Atoi(strings.TrimSpace(right))
	if errW != nil || errH != nil || w <= 0 || h <= 0 {
		return 0, 0, false
	}
	return w, h, true
}

// ConcatArgs returns the stream-copy concat arguments for a list file.
func ConcatArgs(listFile, output string) []string {
	return []string{"-y", "-loglevel", "error", "-nostats", "-f", "concat", "-safe", "0", "-i", listFile, "-c", "copy", output}
}

// ParseClock parses HH:MM:SS(.fff) into seconds.
func ParseClock(value string) (float64, bool) {
	parts := strings.Split(strings.TrimSpace(value), ":")
	if len(parts) != 3 {
		return 0, false
	}
	hours, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, false
	}
	minutes, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, false
	}
	seconds, err := strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return 0, false
	}
	return float64(hours*3600+minutes*60) + seconds, true
}
