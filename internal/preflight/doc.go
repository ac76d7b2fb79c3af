// Package preflight provides readiness checks for the filesystem paths,
// binaries, editor connection, and worker pool that proxyencoder depends on.
//
// These checks run in three contexts:
//   - The worker daemon calls RunAll before registering. A failed check
//     stops startup so the worker never claims jobs it cannot encode.
//   - The queue command calls CheckWorkers to warn when no online worker
//     will consume the batch's routing queue.
//   - The status command renders every check in one table.
package preflight
