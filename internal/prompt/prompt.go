// Package prompt asks the operator yes/no and multiple-choice questions.
//
// Terminal reads answers line by line from any reader, so answers can be
// piped in. Auto answers every question the same way for unattended runs,
// and Script replays canned answers in tests.
package prompt

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"proxyencoder/internal/services"
)

// Terminal prompts on a writer and reads answers from a reader.
type Terminal struct {
	mu       sync.Mutex
	in       *bufio.Reader
	out      io.Writer
	question *color.Color
	hint     *color.Color
	warn     *color.Color
}

// NewTerminal builds a prompter. Colour is enabled only when out is a TTY.
func NewTerminal(in io.Reader, out io.Writer) *Terminal {
	t := &Terminal{
		in:       bufio.NewReader(in),
		out:      out,
		question: color.New(color.FgYellow, color.Bold),
		hint:     color.New(color.FgMagenta),
		warn:     color.New(color.FgRed),
	}
	if !isTerminal(out) {
		t.question.DisableColor()
		t.hint.DisableColor()
		t.warn.DisableColor()
	}
	return t
}

// Stdio returns a Terminal bound to the process's stdin and stdout.
func Stdio() *Terminal {
	return NewTerminal(os.Stdin, os.Stdout)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Confirm asks a yes/no question, repeating until it gets a valid answer.
func (t *Terminal) Confirm(ctx context.Context, question string) (bool, error) {
	answer, err := t.ask(ctx, question, []string{"y", "n"}, func(raw string) (string, bool) {
		switch strings.ToLower(raw) {
		case "y", "yes":
			return "y", true
		case "n", "no":
			return "n", true
		}
		return "", false
	})
	if err != nil {
		return false, err
	}
	return answer == "y", nil
}

// Choose asks the operator to pick one of choices. Any unambiguous prefix
// of a choice is accepted.
func (t *Terminal) Choose(ctx context.Context, question string, choices []string) (string, error) {
	if len(choices) == 0 {
		return "", errors.New("no choices offered")
	}
	return t.ask(ctx, question, choices, func(raw string) (string, bool) {
		return MatchChoice(raw, choices)
	})
}

// Warn prints a highlighted warning line.
func (t *Terminal) Warn(message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.warn.Fprintln(t.out, message)
}

func (t *Terminal) ask(ctx context.Context, question string, hints []string, parse func(string) (string, bool)) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		t.question.Fprint(t.out, question)
		t.hint.Fprintf(t.out, " [%s]: ", strings.Join(hints, "/"))
		line, err := t.in.ReadString('\n')
		raw := strings.TrimSpace(line)
		if raw != "" {
			if answer, ok := parse(raw); ok {
				return answer, nil
			}
			fmt.Fprintf(t.out, "Please answer one of: %s\n", strings.Join(hints, ", "))
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return "", services.Wrap(services.ErrAborted, "prompt", "read answer", "input closed before an answer was given", nil)
			}
			return "", fmt.Errorf("read answer: %w", err)
		}
	}
}

// MatchChoice resolves raw against choices by exact match, then by unique
// case-insensitive prefix.
func MatchChoice(raw string, choices []string) (string, bool) {
	needle := strings.ToLower(strings.TrimSpace(raw))
	if needle == "" {
		return "", false
	}
	var match string
	matches := 0
	for _, choice := range choices {
		lower := strings.ToLower(choice)
		if lower == needle {
			return choice, true
		}
		if strings.HasPrefix(lower, needle) {
			match = choice
			matches++
		}
	}
	if matches == 1 {
		return match, true
	}
	return "", false
}

// Auto answers every question without reading input. With Answer true it
// confirms everything and prefers "all" then "yes" among choices.
type Auto struct {
	Answer bool
}

// Confirm returns a.Answer.
func (a Auto) Confirm(context.Context, string) (bool, error) {
	return a.Answer, nil
}

// Choose picks the broadest affirmative or negative choice.
func (a Auto) Choose(_ context.Context, _ string, choices []string) (string, error) {
	if len(choices) == 0 {
		return "", errors.New("no choices offered")
	}
	preferred := []string{"no"}
	if a.Answer {
		preferred = []string{"all", "yes"}
	}
	for _, want := range preferred {
		if choice, ok := MatchChoice(want, choices); ok {
			return choice, nil
		}
	}
	if a.Answer {
		return choices[0], nil
	}
	return choices[len(choices)-1], nil
}

// Script replays canned answers in order and records the questions asked.
// Confirm accepts "y"/"yes"/"n"/"no"; Choose accepts any MatchChoice input.
type Script struct {
	mu        sync.Mutex
	answers   []string
	Questions []string
}

// NewScript returns a Script that will give answers in order.
func NewScript(answers ...string) *Script {
	return &Script{answers: answers}
}

func (s *Script) next(question string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Questions = append(s.Questions, question)
	if len(s.answers) == 0 {
		return "", fmt.Errorf("unexpected prompt: %q", question)
	}
	answer := s.answers[0]
	s.answers = s.answers[1:]
	return answer, nil
}

// Confirm pops the next answer.
func (s *Script) Confirm(_ context.Context, question string) (bool, error) {
	answer, err := s.next(question)
	if err != nil {
		return false, err
	}
	switch strings.ToLower(answer) {
	case "y", "yes":
		return true, nil
	case "n", "no":
		return false, nil
	}
	return false, fmt.Errorf("script answer %q is not yes/no", answer)
}

// Choose pops the next answer and matches it against choices.
func (s *Script) Choose(_ context.Context, question string, choices []string) (string, error) {
	answer, err := s.next(question)
	if err != nil {
		return "", err
	}
	choice, ok := MatchChoice(answer, choices)
	if !ok {
		return "", fmt.Errorf("script answer %q matches none of %v", answer, choices)
	}
	return choice, nil
}

// Remaining reports how many answers were not consumed.
func (s *Script) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.answers)
}
