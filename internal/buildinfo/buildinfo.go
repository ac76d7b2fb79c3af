// Package buildinfo reports the version and commit baked into the binary.
package buildinfo

import (
	"runtime/debug"
	"strings"
)

// Overridden at link time:
//
//	go build -ldflags "-X proxyencoder/internal/buildinfo.commit=$(git rev-parse HEAD)"
var (
	commit  = ""
	version = ""
)

var readBuildInfo = debug.ReadBuildInfo

// Commit returns the full VCS revision, or "" when the build carries none.
func Commit() string {
	if value := strings.TrimSpace(commit); value != "" {
		return value
	}
	info, ok := readBuildInfo()
	if !ok {
		return ""
	}
	for _, setting := range info.Settings {
		if setting.Key == "vcs.revision" {
			return strings.TrimSpace(setting.Value)
		}
	}
	return ""
}

// ShortSHA returns the first seven characters of the commit.
func ShortSHA() string {
	return Short(Commit())
}

// Short trims a commit hash to seven characters.
func Short(sha string) string {
	sha = strings.TrimSpace(sha)
	if len(sha) > 7 {
		return sha[:7]
	}
	return sha
}

// Modified reports whether the binary was built from a dirty tree.
func Modified() bool {
	info, ok := readBuildInfo()
	if !ok {
		return false
	}
	for _, setting := range info.Settings {
		if setting.Key == "vcs.modified" {
			return setting.Value == "true"
		}
	}
	return false
}

// Version returns the module version, falling back to "dev".
func Version() string {
	if value := strings.TrimSpace(version); value != "" {
		return value
	}
	if info, ok := readBuildInfo(); ok {
		if v := strings.TrimSpace(info.Main.Version); v != "" && v != "(devel)" {
			return v
		}
	}
	return "dev"
}
