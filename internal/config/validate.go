package config

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateApp(); err != nil {
		return err
	}
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateProxy(); err != nil {
		return err
	}
	if err := c.validateFilters(); err != nil {
		return err
	}
	if err := c.validateChunking(); err != nil {
		return err
	}
	if err := c.validateBroker(); err != nil {
		return err
	}
	if err := c.validateWorker(); err != nil {
		return err
	}
	if err := c.validateEditor(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	if c.Logging.RetentionDays < 0 {
		return errors.New("logging.retention_days must be >= 0")
	}
	return nil
}

func validLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	default:
		return false
	}
}

func (c *Config) validateApp() error {
	if !validLevel(c.App.LogLevel) {
		return fmt.Errorf("app.log_level must be one of debug, info, warn, error (got %q)", c.App.LogLevel)
	}
	switch c.App.LogFormat {
	case "console", "json":
	default:
		return fmt.Errorf("app.log_format must be console or json (got %q)", c.App.LogFormat)
	}
	if owner, name, ok := strings.Cut(c.App.UpdateRepo, "/"); !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return errors.New("app.update_repo must be in owner/name form")
	}
	return nil
}

func (c *Config) validatePaths() error {
	if c.Paths.ProxyPathRoot == "" {
		return errors.New("paths.proxy_path_root must be set")
	}
	return nil
}

func (c *Config) validateProxy() error {
	if c.Proxy.Codec == "" {
		return errors.New("proxy.codec must be set")
	}
	if c.Proxy.VerticalRes <= 0 {
		return errors.New("proxy.vertical_res must be positive")
	}
	if c.Proxy.PixFmt == "" {
		return errors.New("proxy.pix_fmt must be set")
	}
	if c.Proxy.AudioCodec == "" {
		return errors.New("proxy.audio_codec must be set")
	}
	if c.Proxy.AudioSampleRate <= 0 {
		return errors.New("proxy.audio_samplerate must be positive")
	}
	if !strings.HasPrefix(c.Proxy.Ext, ".") || len(c.Proxy.Ext) < 2 {
		return fmt.Errorf("proxy.ext must start with '.' (got %q)", c.Proxy.Ext)
	}
	if !slices.Contains(validFFmpegLogLevels, c.Proxy.FFmpegLogLevel) {
		return fmt.Errorf("proxy.ffmpeg_loglevel must be one of %s", strings.Join(validFFmpegLogLevels, ", "))
	}
	return nil
}

func (c *Config) validateFilters() error {
	if len(c.Filters.ExtensionWhitelist) == 0 {
		return errors.New("filters.extension_whitelist must list at least one extension")
	}
	for _, ext := range c.Filters.ExtensionWhitelist {
		if !strings.HasPrefix(ext, ".") {
			return fmt.Errorf("filters.extension_whitelist entries must start with '.' (got %q)", ext)
		}
	}
	if c.Filters.UseFramerateWhitelist && len(c.Filters.FramerateWhitelist) == 0 {
		return errors.New("filters.framerate_whitelist must be set when use_framerate_whitelist is enabled")
	}
	for _, fps := range c.Filters.FramerateWhitelist {
		if fps <= 0 {
			return errors.New("filters.framerate_whitelist entries must be positive")
		}
	}
	return nil
}

func (c *Config) validateChunking() error {
	if !c.Chunking.Enabled {
		return nil
	}
	if c.Chunking.ChunkDuration <= 0 {
		return errors.New("chunking.chunk_duration must be positive")
	}
	if c.Chunking.ChunkThreshold <= 0 {
		return errors.New("chunking.chunk_threshold must be positive")
	}
	if c.Chunking.ChunkDuration >= c.Chunking.ChunkThreshold {
		return errors.New("chunking.chunk_duration must be less than chunking.chunk_threshold")
	}
	return nil
}

func (c *Config) validateBroker() error {
	switch c.Broker.Backend {
	case BackendSQLite:
		if c.Broker.SQLitePath == "" {
			return errors.New("broker.sqlite_path must be set")
		}
	case BackendPostgres:
		if c.Broker.PostgresDSN == "" {
			return fmt.Errorf("broker.postgres_dsn must be set for the postgres backend (or set %s)", envPostgresDSN)
		}
	default:
		return fmt.Errorf("broker.backend must be sqlite or postgres (got %q)", c.Broker.Backend)
	}
	if c.Broker.PollInterval <= 0 {
		return errors.New("broker.poll_interval must be positive")
	}
	if c.Broker.ResultExpires <= 0 {
		return errors.New("broker.result_expires must be positive")
	}
	return nil
}

func (c *Config) validateWorker() error {
	if !validLevel(c.Worker.LogLevel) {
		return fmt.Errorf("worker.log_level must be one of debug, info, warn, error (got %q)", c.Worker.LogLevel)
	}
	if c.Worker.Concurrency <= 0 {
		return errors.New("worker.concurrency must be positive")
	}
	if c.Worker.HeartbeatInterval <= 0 {
		return errors.New("worker.heartbeat_interval must be positive")
	}
	if c.Worker.HeartbeatTimeout <= c.Worker.HeartbeatInterval {
		return errors.New("worker.heartbeat_timeout must be greater than worker.heartbeat_interval")
	}
	if c.Worker.MaxAttempts <= 0 {
		return errors.New("worker.max_attempts must be positive")
	}
	if c.Worker.ProgressPersistInterval <= 0 {
		return errors.New("worker.progress_persist_interval must be positive")
	}
	return nil
}

func (c *Config) validateEditor() error {
	switch c.Editor.Driver {
	case DriverBridge:
		if c.Editor.BridgeURL == "" {
			return errors.New("editor.bridge_url must be set for the bridge driver")
		}
		parsed, err := url.Parse(c.Editor.BridgeURL)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("editor.bridge_url must be an absolute URL (got %q)", c.Editor.BridgeURL)
		}
	case DriverSnapshot:
		if c.Editor.SnapshotPath == "" {
			return errors.New("editor.snapshot_path must be set for the snapshot driver")
		}
	default:
		return fmt.Errorf("editor.driver must be bridge or snapshot (got %q)", c.Editor.Driver)
	}
	if c.Editor.RequestTimeout <= 0 {
		return errors.New("editor.request_timeout must be positive")
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if c.Notifications.RequestTimeout <= 0 {
		return errors.New("notifications.request_timeout must be positive")
	}
	return nil
}
