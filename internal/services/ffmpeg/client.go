package ffmpeg

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"proxyencoder/internal/logging"
	"proxyencoder/internal/media/ffprobe"
	"proxyencoder/internal/services"
)

// ProgressUpdate captures ffmpeg -progress output.
type ProgressUpdate struct {
	Percent float64
	OutTime time.Duration
	Speed   string
	Done    bool
}

// Encoder defines the behaviour the worker needs.
type Encoder interface {
	Encode(ctx context.Context, req EncodeRequest, progress func(ProgressUpdate)) error
	Concat(ctx context.Context, listFile, output string) error
}

// Executor abstracts command execution for testability.
type Executor interface {
	Run(ctx context.Context, binary string, args []string, onStdout, onStderr func(string)) error
}

// Prober reports the duration of a media file in seconds.
type Prober func(ctx context.Context, path string) (float64, error)

// Option configures the client.
type Option func(*Client)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(c *Client) {
		if exec != nil {
			c.exec = exec
		}
	}
}

// WithProber replaces the ffprobe duration lookup.
func WithProber(prober Prober) Option {
	return func(c *Client) {
		if prober != nil {
			c.probe = prober
		}
	}
}

// WithLogger attaches a logger for command lines and failures.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Client wraps ffmpeg CLI interactions.
type Client struct {
	binary  string
	timeout time.Duration
	exec    Executor
	probe   Prober
	logger  *slog.Logger
}

// New constructs an ffmpeg client. probeBinary locates ffprobe for sources
// whose duration the request does not carry.
func New(binary, probeBinary string, timeoutSeconds int, opts ...Option) (*Client, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		return nil, errors.New("ffmpeg binary required")
	}
	client := &Client{
		binary:  binary,
		timeout: time.Duration(timeoutSeconds) * time.Second,
		exec:    commandExecutor{},
		logger:  logging.NewNop(),
	}
	client.probe = func(ctx context.Context, path string) (float64, error) {
		result, err := ffprobe.Inspect(ctx, probeBinary, path)
		if err != nil {
			return 0, err
		}
		return result.DurationSeconds(), nil
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// Encode renders req.Output from req.Source, reporting progress as ffmpeg
// advances through the source.
func (c *Client) Encode(ctx context.Context, req EncodeRequest, progress func(ProgressUpdate)) error {
	if strings.TrimSpace(req.Source) == "" || strings.TrimSpace(req.Output) == "" {
		return services.Wrap(services.ErrValidation, "encode", "prepare", "source and output paths are required", nil)
	}
	if _, err := os.Stat(req.Source); err != nil {
		return services.Wrap(services.ErrNotFound, "encode", "stat source", req.Source, err)
	}
	if err := os.MkdirAll(filepath.Dir(req.Output), 0o755); err != nil {
		return services.Wrap(services.ErrConfiguration, "encode", "create output dir", filepath.Dir(req.Output), err)
	}

	runCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	args := BuildArgs(req)
	logFile, err := openEncodeLog(req.LogPath, c.binary, args)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "encode", "open encode log", req.LogPath, err)
	}
	defer logFile.Close()

	duration := c.duration(runCtx, req)
	tracker := newProgressTracker(duration)
	tail := newLineTail(20)

	c.logger.Debug("ffmpeg encode starting",
		logging.String(logging.FieldEventType, "ffmpeg_encode_start"),
		logging.String("source", req.Source),
		logging.String("output", req.Output),
		logging.String("command", c.binary+" "+strings.Join(args, " ")),
		logging.Float64("duration_seconds", duration.Seconds()),
	)

	runErr := c.exec.Run(runCtx, c.binary, args, func(line string) {
		if update, ok := tracker.feed(line); ok && progress != nil {
			progress(update)
		}
	}, func(line string) {
		tail.add(line)
		logFile.writeLine(line)
	})
	if runErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return services.Wrap(services.ErrTimeout, "encode", "ffmpeg", fmt.Sprintf("exceeded %s", c.timeout), runErr)
		}
		return services.Wrap(services.ErrExternalTool, "encode", "ffmpeg", tail.String(), runErr)
	}

	if _, err := os.Stat(req.Output); err != nil {
		return services.Wrap(services.ErrExternalTool, "encode", "verify output", "ffmpeg produced no output file", err)
	}
	if progress != nil {
		progress(ProgressUpdate{Percent: 100, OutTime: duration, Done: true})
	}
	return nil
}

// Concat stream-copies the files listed in listFile into output.
func (c *Client) Concat(ctx context.Context, listFile, output string) error {
	tail := newLineTail(20)
	args := ConcatArgs(listFile, output)
	if err := c.exec.Run(ctx, c.binary, args, nil, tail.add); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return services.Wrap(services.ErrExternalTool, "stitch", "ffmpeg concat", tail.String(), err)
	}
	if _, err := os.Stat(output); err != nil {
		return services.Wrap(services.ErrExternalTool, "stitch", "verify output", "concat produced no output file", err)
	}
	return nil
}

// duration resolves the span ffmpeg will render: the chunk range, then
// frames over fps, then ffprobe.
func (c *Client) duration(ctx context.Context, req EncodeRequest) time.Duration {
	if req.IsChunk() {
		in, okIn := ParseClock(req.ChunkIn)
		out, okOut := ParseClock(req.ChunkOut)
		if okIn && okOut && out > in {
			return seconds(out - in)
		}
	}
	if req.Frames > 0 && req.FPS > 0 {
		return seconds(float64(req.Frames) / req.FPS)
	}
	if c.probe == nil {
		return 0
	}
	probed, err := c.probe(ctx, req.Source)
	if err != nil || probed <= 0 {
		c.logger.Debug("duration probe failed; progress will be indeterminate",
			logging.String("source", req.Source),
			logging.Error(err),
		)
		return 0
	}
	return seconds(probed)
}

func seconds(value float64) time.Duration {
	return time.Duration(value * float64(time.Second))
}

type encodeLog struct {
	mu   sync.Mutex
	file *os.File
}

func openEncodeLog(path, binary string, args []string) (*encodeLog, error) {
	if strings.TrimSpace(path) == "" {
		return &encodeLog{}, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(file, "# %s %s\n", binary, strings.Join(args, " "))
	return &encodeLog{file: file}, nil
}

func (l *encodeLog) writeLine(line string) {
	if l == nil || l.file == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(l.file, line)
}

func (l *encodeLog) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	return l.file.Close()
}

// lineTail keeps the last few stderr lines for error messages.
type lineTail struct {
	mu    sync.Mutex
	max   int
	lines []string
}

func newLineTail(max int) *lineTail {
	return &lineTail{max: max}
}

func (t *lineTail) add(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lines = append(t.lines, line)
	if len(t.lines) > t.max {
		t.lines = t.lines[len(t.lines)-t.max:]
	}
}

func (t *lineTail) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.lines) == 0 {
		return "ffmpeg failed"
	}
	return strings.Join(t.lines, "; ")
}

type commandExecutor struct{}

func (commandExecutor) Run(ctx context.Context, binary string, args []string, onStdout, onStderr func(string)) error {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start command: %w", err)
	}

	var wg sync.WaitGroup
	var scanErr error
	var once sync.Once

	scan := func(r io.Reader, forward func(string)) {
		defer wg.Done()
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			if forward != nil {
				forward(scanner.Text())
			}
		}
		if err := scanner.Err(); err != nil {
			once.Do(func() {
				scanErr = err
			})
		}
	}

	wg.Add(2)
	go scan(stdout, onStdout)
	go scan(stderr, onStderr)

	wg.Wait()
	if scanErr != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return fmt.Errorf("scan output: %w", scanErr)
	}

	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("wait command: %w", err)
	}
	return nil
}
