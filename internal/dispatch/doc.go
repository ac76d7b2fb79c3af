// Package dispatch runs the queue command: it checks that a compatible
// worker is online, reconciles the current timeline's clips against
// existing proxies, enqueues the remaining encodes as one batch, waits for
// the workers to finish, and links the new proxies back into the editor.
package dispatch
