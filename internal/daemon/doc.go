// Package daemon coordinates the long-running encode worker process.
//
// It wires configuration, queue storage, and the worker into a single
// lifecycle with flock-based locking so only one worker daemon runs per
// state directory. When a listen address is configured the daemon also
// serves a small HTTP surface for health probes, Prometheus scraping, and
// a JSON status snapshot.
//
// Keep orchestration here: encode and queue logic belong to the worker and
// queue packages while the daemon focuses on startup, shutdown, and status.
package daemon
