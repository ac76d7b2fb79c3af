// Package worker claims encode jobs from the shared queue and renders them
// with ffmpeg.
//
// A Worker runs one loop per concurrency slot. Each loop reclaims stale
// jobs, claims the next pending job routed to this build's queue name,
// keeps the job's heartbeat fresh while ffmpeg runs, and records the
// outcome. Chunked sources are stitched by whichever worker finishes the
// last chunk of a group.
//
// Losing ownership of a job mid-encode (the batch was canceled, or a stale
// reclaim handed it to another worker) cancels the encode without
// recording a result.
package worker
