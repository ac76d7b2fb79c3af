package deps

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// probeTimeout bounds each "<binary> -version" call.
const probeTimeout = 5 * time.Second

// Tool is an external binary the encoder shells out to.
type Tool struct {
	Name     string
	Binary   string
	Purpose  string
	Optional bool
}

// Status is the outcome of checking one Tool.
type Status struct {
	Name      string `json:"name"`
	Command   string `json:"command"`
	Purpose   string `json:"purpose,omitempty"`
	Optional  bool   `json:"optional,omitempty"`
	Available bool   `json:"available"`
	Version   string `json:"version,omitempty"`
	Detail    string `json:"detail,omitempty"`
}

// Check resolves every tool and, for those found, records the first line of
// its -version output. A binary that resolves but cannot report a version is
// still available.
func Check(ctx context.Context, tools ...Tool) []Status {
	out := make([]Status, len(tools))
	for i, tool := range tools {
		st := Status{
			Name:     tool.Name,
			Command:  strings.TrimSpace(tool.Binary),
			Purpose:  tool.Purpose,
			Optional: tool.Optional,
		}
		switch path, err := Resolve(st.Command); {
		case st.Command == "":
			st.Detail = "command not configured"
		case err != nil:
			st.Detail = err.Error()
		default:
			st.Command = path
			st.Available = true
			st.Version = versionLine(ctx, path)
		}
		out[i] = st
	}
	return out
}

// Missing filters statuses down to required tools that were not found.
func Missing(statuses []Status) []Status {
	var missing []Status
	for _, st := range statuses {
		if !st.Optional && !st.Available {
			missing = append(missing, st)
		}
	}
	return missing
}

// Resolve returns the executable path for binary. Values containing a path
// separator are checked in place; bare names are looked up on PATH.
func Resolve(binary string) (string, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		return "", fmt.Errorf("command not configured")
	}
	if !strings.ContainsAny(binary, `/\`) {
		path, err := exec.LookPath(binary)
		if err != nil {
			return "", fmt.Errorf("binary %q not found on PATH", binary)
		}
		return path, nil
	}
	info, err := os.Stat(binary)
	switch {
	case err != nil:
		return "", fmt.Errorf("binary %q not found", binary)
	case info.IsDir():
		return "", fmt.Errorf("%s is a directory", binary)
	case runtime.GOOS != "windows" && info.Mode().Perm()&0o111 == 0:
		return "", fmt.Errorf("%s is not executable", binary)
	}
	return filepath.Clean(binary), nil
}

func versionLine(ctx context.Context, path string) string {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	output, err := exec.CommandContext(ctx, path, "-version").Output()
	if err != nil {
		return ""
	}
	line, _, _ := bufio.NewReader(bytes.NewReader(output)).ReadLine()
	return strings.TrimSpace(string(line))
}
