// Package daemonrun is the process entrypoint for the worker daemon.
package daemonrun
