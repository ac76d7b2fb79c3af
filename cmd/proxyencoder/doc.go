// Package main hosts the proxyencoder CLI.
//
// The Cobra command tree covers both sides of the queue: editors run `queue`
// and `link` against the open project, render nodes run `work`, and
// everyone can inspect the shared queue with `mon`, `status`, `retry` and
// `purge`. Configuration is resolved once per invocation in commandContext
// so subcommands only deal with their own flow.
package main
