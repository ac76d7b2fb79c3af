// Package deps locates the ffmpeg and ffprobe binaries a worker shells out
// to and records the version each one reports.
package deps
