// Package notifications delivers batch and worker events via ntfy.
//
// NewService publishes to the topic configured in config.toml and degrades
// to a no-op when no topic is set. Callers pass an Event plus a Payload map;
// the message wording lives here so the queue command and the worker stay
// free of HTTP glue.
package notifications
