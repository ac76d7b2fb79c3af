package logging

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
)

// textHandler writes one human-readable line per record. The clip and job a
// record belongs to are pulled to the front so interleaved encode slots stay
// readable:
//
//	15:04:05.000 INFO  [A001.mov 1a2b3c4d] worker: encode finished attempt=2
type textHandler struct {
	out    *lockedWriter
	level  slog.Leveler
	source bool
	color  bool
	prefix string
	attrs  []field
}

type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

type field struct {
	key   string
	value slog.Value
}

func newTextHandler(w io.Writer, level slog.Leveler, source, colorize bool) *textHandler {
	return &textHandler{out: &lockedWriter{w: w}, level: level, source: source, color: colorize}
}

func (h *textHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *textHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = appendFields(append([]field(nil), h.attrs...), h.prefix, attrs)
	return &next
}

func (h *textHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.prefix = h.prefix + name + "."
	return &next
}

func (h *textHandler) Handle(_ context.Context, r slog.Record) error {
	fields := append([]field(nil), h.attrs...)
	r.Attrs(func(a slog.Attr) bool {
		fields = appendFields(fields, h.prefix, []slog.Attr{a})
		return true
	})

	var component, clip, job string
	rest := fields[:0]
	for _, f := range fields {
		switch f.key {
		case FieldComponent:
			component = plain(f.value)
		case FieldClip:
			clip = plain(f.value)
		case FieldJobID:
			job = shortJob(plain(f.value))
		default:
			rest = append(rest, f)
		}
	}

	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}

	var line bytes.Buffer
	line.WriteString(ts.Local().Format("2006-01-02 15:04:05.000"))
	line.WriteByte(' ')
	line.WriteString(h.levelTag(r.Level))
	if tag := strings.TrimSpace(clip + " " + job); tag != "" {
		line.WriteString(" [")
		line.WriteString(tag)
		line.WriteByte(']')
	}
	line.WriteByte(' ')
	if component != "" {
		line.WriteString(component)
		line.WriteString(": ")
	}
	msg := strings.TrimSpace(r.Message)
	if msg == "" {
		msg = "(no message)"
	}
	line.WriteString(msg)
	if h.source && r.PC != 0 {
		if src := r.Source(); src != nil {
			fmt.Fprintf(&line, " (%s:%d)", filepath.Base(src.File), src.Line)
		}
	}
	for _, f := range rest {
		line.WriteByte(' ')
		line.WriteString(f.key)
		line.WriteByte('=')
		line.WriteString(quoted(f.value))
	}
	line.WriteByte('\n')

	h.out.mu.Lock()
	defer h.out.mu.Unlock()
	_, err := h.out.w.Write(line.Bytes())
	return err
}

func (h *textHandler) levelTag(level slog.Level) string {
	var tag string
	var paint *color.Color
	switch {
	case level >= slog.LevelError:
		tag, paint = "ERROR", color.New(color.FgRed, color.Bold)
	case level >= slog.LevelWarn:
		tag, paint = "WARN ", color.New(color.FgYellow)
	case level >= slog.LevelInfo:
		tag, paint = "INFO ", color.New(color.FgCyan)
	default:
		tag, paint = "DEBUG", color.New(color.FgHiBlack)
	}
	if !h.color {
		return tag
	}
	paint.EnableColor()
	return paint.Sprint(tag)
}

func appendFields(dst []field, prefix string, attrs []slog.Attr) []field {
	for _, a := range attrs {
		a.Value = a.Value.Resolve()
		if a.Value.Kind() == slog.KindGroup {
			inner := prefix
			if a.Key != "" {
				inner = prefix + a.Key + "."
			}
			dst = appendFields(dst, inner, a.Value.Group())
			continue
		}
		if a.Key == "" {
			continue
		}
		dst = append(dst, field{key: prefix + a.Key, value: a.Value})
	}
	return dst
}

func shortJob(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// plain renders a value without quoting.
func plain(v slog.Value) string {
	switch v.Kind() {
	case slog.KindString:
		return v.String()
	case slog.KindFloat64:
		return strconv.FormatFloat(v.Float64(), 'f', -1, 64)
	case slog.KindTime:
		return v.Time().Local().Format(time.RFC3339)
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return err.Error()
		}
		return fmt.Sprint(v.Any())
	default:
		return v.String()
	}
}

// quoted renders a value for key=value output. Blank values and values with
// spaces, quotes or '=' are Go-quoted.
func quoted(v slog.Value) string {
	s := plain(v)
	if s == "" || strings.ContainsAny(s, " \t\r\n\"=") {
		return strconv.Quote(s)
	}
	return s
}
