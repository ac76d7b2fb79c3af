package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"proxyencoder/internal/services"
)

const (
	exitFailure     = 1
	exitInterrupted = 130
)

func main() {
	os.Exit(run(newRootCommand().Execute(), os.Stderr))
}

// run reports err on stderr and maps it to the process exit status. Declining
// a prompt is not a failure.
func run(err error, stderr io.Writer) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, services.ErrAborted):
		fmt.Fprintln(stderr, "Aborted.")
		return 0
	case errors.Is(err, context.Canceled):
		return exitInterrupted
	default:
		fmt.Fprintln(stderr, "Error:", err)
		return exitFailure
	}
}
