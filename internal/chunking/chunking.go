// Package chunking splits long encodes into time ranges that separate
// workers render, and prepares the pieces for stitching.
package chunking

import (
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"proxyencoder/internal/config"
	"proxyencoder/internal/reconcile"
)

// DirName is the hidden directory next to an output that holds its chunks.
const DirName = ".chunks"

// Chunk is one time range of a source.
type Chunk struct {
	Number   int
	InFrame  float64
	OutFrame float64
	In       string
	Out      string
}

// Segment is one unit of encode work derived from a clip.
type Segment struct {
	// Chunk is nil for an unchunked encode.
	Chunk      *Chunk
	Count      int
	OutputPath string
}

// Calculate cuts frames into whole chunks of chunkSeconds*fps frames plus a
// trailing partial chunk.
func Calculate(frames int64, fps float64, chunkSeconds int) ([]Chunk, error) {
	if fps <= 0 {
		return nil, fmt.Errorf("fps must be positive (got %v)", fps)
	}
	if chunkSeconds <= 0 {
		return nil, fmt.Errorf("chunk length must be positive (got %d)", chunkSeconds)
	}
	if frames <= 0 {
		return nil, nil
	}
	chunkFrames := float64(chunkSeconds) * fps
	total := float64(frames)
	whole := int(math.Floor(total / chunkFrames))

	chunks := make([]Chunk, 0, whole+1)
	var in float64
	for i := 1; i <= whole; i++ {
		out := in + chunkFrames
		chunks = append(chunks, newChunk(i, in, out, fps))
		in = out
	}
	if remaining := total - in; remaining > 1e-6 {
		chunks = append(chunks, newChunk(whole+1, in, total, fps))
	}
	return chunks, nil
}

func newChunk(number int, in, out, fps float64) Chunk {
	return Chunk{
		Number:   number,
		InFrame:  in,
		OutFrame: out,
		In:       Timecode(in, fps),
		Out:      Timecode(out, fps),
	}
}

// Timecode renders a frame position as HH:MM:SS.mmm.
func Timecode(frame, fps float64) string {
	totalMillis := int64(math.Round(frame / fps * 1000))
	hours := totalMillis / 3_600_000
	minutes := totalMillis / 60_000 % 60
	seconds := totalMillis / 1000 % 60
	millis := totalMillis % 1000
	return fmt.Sprintf("%02d:%02d:%02d.%03d", hours, minutes, seconds, millis)
}

// Split returns the segments to encode for clip. Short clips, or any clip
// when chunking is disabled, yield a single unchunked segment.
func Split(clip reconcile.Clip, cfg config.Chunking) ([]Segment, error) {
	single := []Segment{{Count: 1, OutputPath: clip.OutputPath}}
	if !cfg.Enabled || clip.FPS <= 0 || clip.Frames <= 0 {
		return single, nil
	}
	if float64(clip.Frames)/clip.FPS < float64(cfg.ChunkThreshold) {
		return single, nil
	}
	chunks, err := Calculate(clip.Frames, clip.FPS, cfg.ChunkDuration)
	if err != nil {
		return nil, err
	}
	if len(chunks) <= 1 {
		return single, nil
	}
	segments := make([]Segment, 0, len(chunks))
	for i := range chunks {
		c := chunks[i]
		segments = append(segments, Segment{
			Chunk:      &c,
			Count:      len(chunks),
			OutputPath: ChunkPath(clip.OutputPath, c.Number),
		})
	}
	return segments, nil
}

// ChunkDir is the directory holding output's chunks.
func ChunkDir(output string) string {
	return filepath.Join(filepath.Dir(output), DirName)
}

// ChunkPath names chunk n of output: <dir>/.chunks/<stem>-<n><ext>.
func ChunkPath(output string, n int) string {
	ext := filepath.Ext(output)
	stem := strings.TrimSuffix(filepath.Base(output), ext)
	return filepath.Join(ChunkDir(output), fmt.Sprintf("%s-%d%s", stem, n, ext))
}

// ConcatList renders an ffmpeg concat demuxer list for chunks.
func ConcatList(chunks []string) string {
	var b strings.Builder
	for _, chunk := range chunks {
		b.WriteString("file '")
		b.WriteString(strings.ReplaceAll(chunk, "'", `'\''`))
		b.WriteString("'\n")
	}
	return b.String()
}

var chunkSuffix = regexp.MustCompile(`-(\d+)\.[^.\\/]+$`)

// Validate checks chunks can be concatenated: one shared extension and
// numbering that runs 1..N without gaps. It returns them in number order.
func Validate(chunks []string) ([]string, error) {
	if len(chunks) == 0 {
		return nil, errors.New("no chunks to stitch")
	}
	ext := strings.ToLower(filepath.Ext(chunks[0]))
	type numbered struct {
		n    int
		path string
	}
	ordered := make([]numbered, 0, len(chunks))
	for _, chunk := range chunks {
		if strings.ToLower(filepath.Ext(chunk)) != ext {
			return nil, fmt.Errorf("chunk %s: extension differs from %s", chunk, ext)
		}
		match := chunkSuffix.FindStringSubmatch(chunk)
		if match == nil {
			return nil, fmt.Errorf("chunk %s: missing -N suffix", chunk)
		}
		n, _ := strconv.Atoi(match[1])
		ordered = append(ordered, numbered{n: n, path: chunk})
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].n < ordered[j].n })
	out := make([]string, 0, len(ordered))
	for i, item := range ordered {
		if item.n != i+1 {
			return nil, fmt.Errorf("chunk numbering broken: expected %d, found %d", i+1, item.n)
		}
		out = append(out, item.path)
	}
	return out, nil
}
