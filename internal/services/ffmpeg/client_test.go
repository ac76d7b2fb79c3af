package ffmpeg_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"proxyencoder/internal/services"
	"proxyencoder/internal/services/ffmpeg"
)

type stubExecutor struct {
	stdout  []string
	stderr  []string
	err     error
	create  bool
	calls   int
	args    [][]string
	binary  string
	outPath string
}

func (s *stubExecutor) Run(ctx context.Context, binary string, args []string, onStdout, onStderr func(string)) error {
	s.calls++
	s.binary = binary
	s.args = append(s.args, append([]string(nil), args...))
	for _, line := range s.stderr {
		if onStderr != nil {
			onStderr(line)
		}
	}
	for _, line := range s.stdout {
		if onStdout != nil {
			onStdout(line)
		}
	}
	if s.create && len(args) > 0 {
		s.outPath = args[len(args)-1]
		if err := os.WriteFile(s.outPath, []byte("proxy"), 0o644); err != nil {
			return err
		}
	}
	return s.err
}

func newSource(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "A001.mov")
	if err := os.WriteFile(path, []byte("source"), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}
	return path
}

func TestEncodeReportsProgressAndWritesLog(t *testing.T) {
	dir := t.TempDir()
	exec := &stubExecutor{
		create: true,
		stderr: []string{"Input #0, mov", "Output #0, mov"},
		stdout: []string{
			"out_time_us=5000000",
			"speed=2.0x",
			"progress=continue",
			"out_time_ms=10000000",
			"progress=end",
		},
	}
	client, err := ffmpeg.New("ffmpeg", "ffprobe", 0, ffmpeg.WithExecutor(exec))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	req := ffmpeg.EncodeRequest{
		Source:   newSource(t),
		Output:   filepath.Join(dir, "proxies", "day1", "A001.mov"),
		LogPath:  filepath.Join(dir, "logs", "A001.txt"),
		Settings: proxySettings(),
		FPS:      25,
		Frames:   250,
	}
	var updates []ffmpeg.ProgressUpdate
	if err := client.Encode(context.Background(), req, func(u ffmpeg.ProgressUpdate) {
		updates = append(updates, u)
	}); err != nil {
		t.Fatalf("Encode: %v", err)
	}

	if len(updates) != 3 {
		t.Fatalf("expected 3 updates, got %#v", updates)
	}
	if updates[0].Percent != 50 || updates[0].Speed != "2.0x" {
		t.Fatalf("unexpected first update: %#v", updates[0])
	}
	if !updates[1].Done || updates[1].Percent != 100 {
		t.Fatalf("unexpected end update: %#v", updates[1])
	}
	if exec.binary != "ffmpeg" {
		t.Fatalf("binary = %q", exec.binary)
	}

	logData, err := os.ReadFile(req.LogPath)
	if err != nil {
		t.Fatalf("read encode log: %v", err)
	}
	if !strings.Contains(string(logData), "Output #0, mov") || !strings.HasPrefix(string(logData), "# ffmpeg -y") {
		t.Fatalf("unexpected encode log:\n%s", logData)
	}
}

func TestEncodeProbesDurationWhenFramesUnknown(t *testing.T) {
	exec := &stubExecutor{create: true, stdout: []string{"out_time_us=30000000", "progress=continue"}}
	probed := ""
	client, err := ffmpeg.New("ffmpeg", "ffprobe", 0,
		ffmpeg.WithExecutor(exec),
		ffmpeg.WithProber(func(ctx context.Context, path string) (float64, error) {
			probed = path
			return 120, nil
		}),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	req := ffmpeg.EncodeRequest{Source: newSource(t), Output: filepath.Join(t.TempDir(), "A001.mov"), Settings: proxySettings()}
	var first ffmpeg.ProgressUpdate
	if err := client.Encode(context.Background(), req, func(u ffmpeg.ProgressUpdate) {
		if first.OutTime == 0 {
			first = u
		}
	}); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if probed != req.Source {
		t.Fatalf("expected probe of %q, got %q", req.Source, probed)
	}
	if first.Percent != 25 {
		t.Fatalf("expected 25%%, got %v", first.Percent)
	}
}

func TestEncodeChunkUsesSpanForDuration(t *testing.T) {
	exec := &stubExecutor{create: true, stdout: []string{"out_time_us=150000000", "progress=continue"}}
	client, _ := ffmpeg.New("ffmpeg", "ffprobe", 0,
		ffmpeg.WithExecutor(exec),
		ffmpeg.WithProber(func(context.Context, string) (float64, error) {
			t.Fatal("probe must not run for chunks")
			return 0, nil
		}),
	)
	req := ffmpeg.EncodeRequest{
		Source:   newSource(t),
		Output:   filepath.Join(t.TempDir(), "LONG-2.mov"),
		Settings: proxySettings(),
		ChunkIn:  "00:05:00.000",
		ChunkOut: "00:10:00.000",
	}
	var got float64
	if err := client.Encode(context.Background(), req, func(u ffmpeg.ProgressUpdate) {
		if !u.Done {
			got = u.Percent
		}
	}); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if got != 50 {
		t.Fatalf("expected 50%%, got %v", got)
	}
}

func TestEncodeMissingSourceIsNotFound(t *testing.T) {
	client, _ := ffmpeg.New("ffmpeg", "ffprobe", 0, ffmpeg.WithExecutor(&stubExecutor{}))
	err := client.Encode(context.Background(), ffmpeg.EncodeRequest{
		Source: filepath.Join(t.TempDir(), "missing.mov"),
		Output: filepath.Join(t.TempDir(), "out.mov"),
	}, nil)
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if services.Retryable(err) {
		t.Fatal("missing source must not be retried")
	}
}

func TestEncodeFailureCarriesStderrTail(t *testing.T) {
	exec := &stubExecutor{stderr: []string{"Unknown encoder 'dnxhd'"}, err: errors.New("exit status 1")}
	client, _ := ffmpeg.New("ffmpeg", "ffprobe", 0, ffmpeg.WithExecutor(exec))
	err := client.Encode(context.Background(), ffmpeg.EncodeRequest{
		Source:   newSource(t),
		Output:   filepath.Join(t.TempDir(), "out.mov"),
		Settings: proxySettings(),
		Frames:   10,
		FPS:      25,
	}, nil)
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected ErrExternalTool, got %v", err)
	}
	if !strings.Contains(err.Error(), "Unknown encoder") {
		t.Fatalf("expected stderr tail in error, got %v", err)
	}
}

func TestEncodeRequiresOutputFile(t *testing.T) {
	client, _ := ffmpeg.New("ffmpeg", "ffprobe", 0, ffmpeg.WithExecutor(&stubExecutor{}))
	err := client.Encode(context.Background(), ffmpeg.EncodeRequest{
		Source:   newSource(t),
		Output:   filepath.Join(t.TempDir(), "out.mov"),
		Settings: proxySettings(),
		Frames:   10,
		FPS:      25,
	}, nil)
	if err == nil || !strings.Contains(err.Error(), "no output file") {
		t.Fatalf("expected missing output error, got %v", err)
	}
}

func TestConcat(t *testing.T) {
	exec := &stubExecutor{create: true}
	client, _ := ffmpeg.New("ffmpeg", "ffprobe", 0, ffmpeg.WithExecutor(exec))
	output := filepath.Join(t.TempDir(), "LONG.mov")
	if err := client.Concat(context.Background(), "list.txt", output); err != nil {
		t.Fatalf("Concat: %v", err)
	}
	if exec.calls != 1 || exec.args[0][len(exec.args[0])-1] != output {
		t.Fatalf("unexpected concat invocation: %#v", exec.args)
	}
}

func TestNewRequiresBinary(t *testing.T) {
	if _, err := ffmpeg.New(" ", "ffprobe", 0); err == nil {
		t.Fatal("expected error for empty binary")
	}
}
