package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

const (
	statusLabelWidth = 22
	statusIndent     = "  "
)

type palette struct {
	colors map[statusKind]*color.Color
	header *color.Color
}

func newPalette(colorize bool) palette {
	p := palette{
		colors: map[statusKind]*color.Color{
			statusInfo:  color.New(color.FgBlue),
			statusOK:    color.New(color.FgGreen),
			statusWarn:  color.New(color.FgYellow),
			statusError: color.New(color.FgRed),
		},
		header: color.New(color.FgBlue, color.Bold),
	}
	for _, c := range p.colors {
		setColor(c, colorize)
	}
	setColor(p.header, colorize)
	return p
}

func setColor(c *color.Color, enabled bool) {
	if enabled {
		c.EnableColor()
	} else {
		c.DisableColor()
	}
}

func (p palette) statusLine(label string, kind statusKind, message string) string {
	status := "[" + statusKindLabel(kind) + "]"
	if message != "" {
		status += " " + message
	}
	return p.colors[kind].Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, label+":", status)
}

func (p palette) section(w io.Writer, title string) {
	line := fmt.Sprintf("== %s ==", strings.TrimSpace(title))
	fmt.Fprintln(w, p.header.Sprint(line))
	fmt.Fprintln(w, p.header.Sprint(strings.Repeat("-", len(line))))
}

func statusKindLabel(kind statusKind) string {
	switch kind {
	case statusOK:
		return "OK"
	case statusWarn:
		return "WARN"
	case statusError:
		return "ERROR"
	default:
		return "INFO"
	}
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
