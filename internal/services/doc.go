// Package services holds the error classification and job-scoped context
// shared by the queuer, the worker and the ffmpeg client.
//
// Wrap tags a failure with a marker such as ErrValidation or
// ErrExternalTool; the worker asks Retryable whether a failed encode goes
// back to the queue. WithJob stamps the job, batch, clip and worker onto a
// context so every log line of an encode carries them.
package services
