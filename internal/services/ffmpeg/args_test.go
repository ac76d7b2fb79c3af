package ffmpeg_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"proxyencoder/internal/config"
	"proxyencoder/internal/services/ffmpeg"
)

func proxySettings() config.Proxy {
	return config.Default().Proxy
}

func TestBuildArgsUnchunked(t *testing.T) {
	req := ffmpeg.EncodeRequest{
		Source:        "/footage/A001.mov",
		Output:        "/proxies/A001.mov",
		Settings:      proxySettings(),
		Resolution:    "3840x2160",
		StartTimecode: "01:00:00:00",
		HFlip:         true,
	}
	req.Settings.MiscArgs = []string{"-hide_banner"}

	want := []string{
		"-y", "-hide_banner",
		"-i", "/footage/A001.mov",
		"-c:v", "dnxhd",
		"-profile:v", "dnxhr_sq",
		"-vsync", "-1",
		"-vf", "scale=1280:720,hflip,format=yuv422p",
		"-c:a", "pcm_s16le",
		"-ar", "48000",
		"-timecode", "01:00:00:00",
		"-loglevel", "error",
		"-progress", "pipe:1",
		"-nostats",
		"/proxies/A001.mov",
	}
	if diff := cmp.Diff(want, ffmpeg.BuildArgs(req)); diff != "" {
		t.Fatalf("args mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildArgsChunkSkipsTimecodeAfterFirstChunk(t *testing.T) {
	req := ffmpeg.EncodeRequest{
		Source:        "/footage/LONG.mxf",
		Output:        "/proxies/.chunks/LONG-2.mov",
		Settings:      proxySettings(),
		StartTimecode: "10:00:00:00",
		VFlip:         true,
		ChunkIn:       "00:05:00.000",
		ChunkOut:      "00:10:00.000",
	}
	args := ffmpeg.BuildArgs(req)

	want := []string{"-y", "-ss", "00:05:00.000", "-to", "00:10:00.000", "-i", "/footage/LONG.mxf"}
	if diff := cmp.Diff(want, args[:len(want)]); diff != "" {
		t.Fatalf("chunk prefix mismatch (-want +got):\n%s", diff)
	}
	for i, arg := range args {
		if arg == "-timecode" {
			t.Fatalf("unexpected timecode for chunk 2 at %d", i)
		}
		if arg == "-vf" && args[i+1] != "scale=-2:720,vflip,format=yuv422p" {
			t.Fatalf("unexpected filter %q", args[i+1])
		}
	}

	req.FirstChunk = true
	found := false
	for _, arg := range ffmpeg.BuildArgs(req) {
		if arg == "-timecode" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected first chunk to carry the source timecode")
	}
}

func TestScaledWidth(t *testing.T) {
	cases := []struct {
		resolution string
		height     int
		want       int
	}{
		{"1920x1080", 720, 1280},
		{"4096x2160", 720, 1366},
		{"1440x1080", 540, 720},
		{"1080x1920", 720, 406},
		{"unknown", 720, -2},
		{"1920x0", 720, -2},
		{"", 720, -2},
	}
	for _, tc := range cases {
		if got := ffmpeg.ScaledWidth(tc.resolution, tc.height); got != tc.want {
			t.Errorf("ScaledWidth(%q, %d) = %d, want %d", tc.resolution, tc.height, got, tc.want)
		}
	}
}

func TestParseClock(t *testing.T) {
	if got, ok := ffmpeg.ParseClock("01:02:03.500"); !ok || got != 3723.5 {
		t.Fatalf("ParseClock = %v %v", got, ok)
	}
	if _, ok := ffmpeg.ParseClock("02:03"); ok {
		t.Fatal("expected short clock to be rejected")
	}
}

func TestConcatArgs(t *testing.T) {
	want := []string{"-y", "-loglevel", "error", "-nostats", "-f", "concat", "-safe", "0", "-i", "list.txt", "-c", "copy", "out.mov"}
	if diff := cmp.Diff(want, ffmpeg.ConcatArgs("list.txt", "out.mov")); diff != "" {
		t.Fatalf("concat args mismatch (-want +got):\n%s", diff)
	}
}
