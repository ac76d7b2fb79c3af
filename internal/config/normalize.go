package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeApp()
	c.normalizeProxy()
	c.normalizeFilters()
	if err := c.normalizeBroker(); err != nil {
		return err
	}
	c.normalizeWorker()
	if err := c.normalizeEditor(); err != nil {
		return err
	}
	c.normalizeNotifications()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.ProxyPathRoot, err = expandPath(strings.TrimSpace(c.Paths.ProxyPathRoot)); err != nil {
		return fmt.Errorf("paths.proxy_path_root: %w", err)
	}
	if strings.TrimSpace(c.Paths.EncodeLogDir) == "" {
		c.Paths.EncodeLogDir = defaultEncodeLogDir
	}
	if c.Paths.EncodeLogDir, err = expandPath(strings.TrimSpace(c.Paths.EncodeLogDir)); err != nil {
		return fmt.Errorf("paths.encode_log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(strings.TrimSpace(c.Paths.LogDir)); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(strings.TrimSpace(c.Paths.StateDir)); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if c.Paths.EnvFile, err = expandPath(strings.TrimSpace(c.Paths.EnvFile)); err != nil {
		return fmt.Errorf("paths.env_file: %w", err)
	}
	return nil
}

func (c *Config) normalizeApp() {
	c.App.LogLevel = normalizeLevel(c.App.LogLevel)
	c.App.LogFormat = strings.ToLower(strings.TrimSpace(c.App.LogFormat))
	if c.App.LogFormat == "" {
		c.App.LogFormat = defaultLogFormat
	}
	c.App.UpdateRepo = strings.Trim(strings.TrimSpace(c.App.UpdateRepo), "/")
	if c.App.UpdateRepo == "" {
		c.App.UpdateRepo = defaultUpdateRepo
	}
	c.App.UpdateBranch = strings.TrimSpace(c.App.UpdateBranch)
	if c.App.UpdateBranch == "" {
		c.App.UpdateBranch = defaultUpdateBranch
	}
}

func (c *Config) normalizeProxy() {
	c.Proxy.Codec = strings.TrimSpace(c.Proxy.Codec)
	c.Proxy.Profile = strings.TrimSpace(c.Proxy.Profile)
	c.Proxy.PixFmt = strings.TrimSpace(c.Proxy.PixFmt)
	c.Proxy.AudioCodec = strings.TrimSpace(c.Proxy.AudioCodec)
	c.Proxy.Ext = strings.ToLower(strings.TrimSpace(c.Proxy.Ext))
	c.Proxy.FFmpegLogLevel = strings.ToLower(strings.TrimSpace(c.Proxy.FFmpegLogLevel))
	if c.Proxy.FFmpegLogLevel == "" {
		c.Proxy.FFmpegLogLevel = defaultFFmpegLogLevel
	}
	args := c.Proxy.MiscArgs[:0]
	for _, arg := range c.Proxy.MiscArgs {
		if trimmed := strings.TrimSpace(arg); trimmed != "" {
			args = append(args, trimmed)
		}
	}
	c.Proxy.MiscArgs = args
}

func (c *Config) normalizeFilters() {
	exts := make([]string, 0, len(c.Filters.ExtensionWhitelist))
	for _, ext := range c.Filters.ExtensionWhitelist {
		if trimmed := strings.ToLower(strings.TrimSpace(ext)); trimmed != "" {
			exts = append(exts, trimmed)
		}
	}
	c.Filters.ExtensionWhitelist = exts
}

func (c *Config) normalizeBroker() error {
	c.Broker.Backend = strings.ToLower(strings.TrimSpace(c.Broker.Backend))
	if c.Broker.Backend == "" {
		c.Broker.Backend = BackendSQLite
	}
	if strings.TrimSpace(c.Broker.SQLitePath) == "" {
		c.Broker.SQLitePath = filepath.Join(c.Paths.StateDir, "queue.db")
	}
	var err error
	if c.Broker.SQLitePath, err = expandPath(strings.TrimSpace(c.Broker.SQLitePath)); err != nil {
		return fmt.Errorf("broker.sqlite_path: %w", err)
	}
	c.Broker.PostgresDSN = strings.TrimSpace(c.Broker.PostgresDSN)
	if c.Broker.PostgresDSN == "" {
		if value, ok := os.LookupEnv(envPostgresDSN); ok {
			c.Broker.PostgresDSN = strings.TrimSpace(value)
		}
	}
	return nil
}

func (c *Config) normalizeWorker() {
	c.Worker.LogLevel = normalizeLevel(c.Worker.LogLevel)
	c.Worker.ListenAddress = strings.TrimSpace(c.Worker.ListenAddress)
	c.Worker.FFmpegBinary = strings.TrimSpace(c.Worker.FFmpegBinary)
	if c.Worker.FFmpegBinary == "" {
		c.Worker.FFmpegBinary = defaultFFmpegBinary
	}
	c.Worker.FFprobeBinary = strings.TrimSpace(c.Worker.FFprobeBinary)
	if c.Worker.FFprobeBinary == "" {
		c.Worker.FFprobeBinary = defaultFFprobeBinary
	}
}

func (c *Config) normalizeEditor() error {
	c.Editor.Driver = strings.ToLower(strings.TrimSpace(c.Editor.Driver))
	if c.Editor.Driver == "" {
		c.Editor.Driver = DriverBridge
	}
	c.Editor.BridgeURL = strings.TrimRight(strings.TrimSpace(c.Editor.BridgeURL), "/")
	c.Editor.BridgeToken = strings.TrimSpace(c.Editor.BridgeToken)
	if c.Editor.BridgeToken == "" {
		if value, ok := os.LookupEnv(envBridgeToken); ok {
			c.Editor.BridgeToken = strings.TrimSpace(value)
		}
	}
	var err error
	if c.Editor.SnapshotPath, err = expandPath(strings.TrimSpace(c.Editor.SnapshotPath)); err != nil {
		return fmt.Errorf("editor.snapshot_path: %w", err)
	}
	return nil
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.NtfyTopic == "" {
		if value, ok := os.LookupEnv(envNtfyTopic); ok {
			c.Notifications.NtfyTopic = strings.TrimSpace(value)
		}
	}
}

// normalizeLevel maps legacy upper-case level names onto the slog vocabulary.
func normalizeLevel(level string) string {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "":
		return defaultLogLevel
	case "warning":
		return "warn"
	case "critical", "fatal":
		return "error"
	default:
		return strings.ToLower(strings.TrimSpace(level))
	}
}
