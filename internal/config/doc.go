// Package config loads, normalizes, and validates proxyencoder configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// PROXYENCODER_POSTGRES_DSN, optionally sourced from a dotenv file. The
// Config type centralizes every knob the queuer, the link command and the
// encode workers need, so proxy settings and broker credentials are
// discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log levels, and clear validation errors.
package config
