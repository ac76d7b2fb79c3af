// Package ffprobe runs ffprobe and reads the duration and video stream
// properties the encoder needs to report progress on sources the editor
// described incompletely.
package ffprobe
