package ffprobe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// Result is the subset of ffprobe's JSON the encoder reads.
type Result struct {
	Streams []Stream `json:"streams"`
	Format  Format   `json:"format"`
}

// Stream describes one stream of the source.
type Stream struct {
	Index     int    `json:"index"`
	CodecType string `json:"codec_type"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	FrameRate string `json:"r_frame_rate"`
	NBFrames  string `json:"nb_frames"`
}

// Format holds container metadata.
type Format struct {
	Duration string `json:"duration"`
}

// Inspect runs ffprobe on path and decodes its JSON report.
func Inspect(ctx context.Context, binary string, path string) (Result, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffprobe"
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return Result{}, errors.New("ffprobe inspect: empty path")
	}

	cmd := exec.CommandContext(ctx, binary, "-v", "error", "-hide_banner", "-show_format", "-show_streams", "-of", "json", "--", path)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return Result{}, fmt.Errorf("ffprobe inspect: %w: %s", err, strings.TrimSpace(string(output)))
	}

	var result Result
	if err := json.Unmarshal(output, &result); err != nil {
		return Result{}, fmt.Errorf("ffprobe parse: %w", err)
	}
	return result, nil
}

// Video returns the first video stream, or nil.
func (r Result) Video() *Stream {
	for i := range r.Streams {
		if strings.EqualFold(r.Streams[i].CodecType, "video") {
			return &r.Streams[i]
		}
	}
	return nil
}

// DurationSeconds returns the container duration. Containers that omit it
// fall back to the video stream's frame count over its frame rate. It
// returns 0 when neither is known.
func (r Result) DurationSeconds() float64 {
	if d := parseFloat(r.Format.Duration); d > 0 {
		return d
	}
	video := r.Video()
	if video == nil {
		return 0
	}
	frames, rate := parseFloat(video.NBFrames), video.Rate()
	if frames <= 0 || rate <= 0 {
		return 0
	}
	return frames / rate
}

// Rate parses r_frame_rate, which ffprobe reports as a fraction such as
// 30000/1001. It returns 0 when unknown.
func (s *Stream) Rate() float64 {
	if s == nil {
		return 0
	}
	num, den, found := strings.Cut(s.FrameRate, "/")
	if !found {
		return parseFloat(num)
	}
	n, d := parseFloat(num), parseFloat(den)
	if n <= 0 || d <= 0 {
		return 0
	}
	return n / d
}

// Resolution renders the stream size as "WIDTHxHEIGHT", or "" when unknown.
func (s *Stream) Resolution() string {
	if s == nil || s.Width <= 0 || s.Height <= 0 {
		return ""
	}
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

func parseFloat(value string) float64 {
	parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil || parsed < 0 {
		return 0
	}
	return parsed
}
