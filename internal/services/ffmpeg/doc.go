// Package ffmpeg wraps the ffmpeg CLI for proxy encodes and chunk stitching.
//
// BuildArgs turns an EncodeRequest into the ffmpeg argument list; Client runs
// it, streams stderr into the per-job encode log and turns `-progress pipe:1`
// output into ProgressUpdate callbacks. Command execution goes through the
// Executor interface so tests can replay canned output without ffmpeg
// installed.
package ffmpeg
