package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// App contains CLI behaviour and version routing settings.
type App struct {
	LogLevel                string `toml:"log_level"`
	LogFormat               string `toml:"log_format"`
	CheckForUpdates         bool   `toml:"check_for_updates"`
	UpdateRepo              string `toml:"update_repo"`
	UpdateBranch            string `toml:"update_branch"`
	DisableVersionConstrain bool   `toml:"disable_version_constrain"`
	AssumeYes               bool   `toml:"assume_yes"`
}

// Paths contains directory configuration.
type Paths struct {
	ProxyPathRoot string `toml:"proxy_path_root"`
	EncodeLogDir  string `toml:"encode_log_dir"`
	LogDir        string `toml:"log_dir"`
	StateDir      string `toml:"state_dir"`
	EnvFile       string `toml:"env_file"`
}

// Proxy contains the encode settings every worker applies to a job.
type Proxy struct {
	Codec           string   `toml:"codec" json:"codec"`
	Profile         string   `toml:"profile" json:"profile"`
	VerticalRes     int      `toml:"vertical_res" json:"vertical_res"`
	PixFmt          string   `toml:"pix_fmt" json:"pix_fmt"`
	AudioCodec      string   `toml:"audio_codec" json:"audio_codec"`
	AudioSampleRate int      `toml:"audio_samplerate" json:"audio_samplerate"`
	MiscArgs        []string `toml:"misc_args" json:"misc_args,omitempty"`
	Ext             string   `toml:"ext" json:"ext"`
	FFmpegLogLevel  string   `toml:"ffmpeg_loglevel" json:"ffmpeg_loglevel"`
	Overwrite       bool     `toml:"overwrite" json:"overwrite"`
}

// Filters decides which timeline media is eligible for proxies.
type Filters struct {
	ExtensionWhitelist    []string  `toml:"extension_whitelist"`
	UseFramerateWhitelist bool      `toml:"use_framerate_whitelist"`
	FramerateWhitelist    []float64 `toml:"framerate_whitelist"`
}

// Chunking splits long sources into segments that encode on separate workers.
type Chunking struct {
	Enabled        bool `toml:"enabled"`
	ChunkThreshold int  `toml:"chunk_threshold"`
	ChunkDuration  int  `toml:"chunk_duration"`
}

// Broker selects and configures the job store shared by queuers and workers.
type Broker struct {
	Backend       string `toml:"backend"`
	SQLitePath    string `toml:"sqlite_path"`
	PostgresDSN   string `toml:"postgres_dsn"`
	PollInterval  int    `toml:"poll_interval"`
	ResultExpires int    `toml:"result_expires"`
}

// Worker contains encode daemon settings.
type Worker struct {
	LogLevel                string `toml:"log_level"`
	Concurrency             int    `toml:"concurrency"`
	HeartbeatInterval       int    `toml:"heartbeat_interval"`
	HeartbeatTimeout        int    `toml:"heartbeat_timeout"`
	MaxAttempts             int    `toml:"max_attempts"`
	ListenAddress           string `toml:"listen_address"`
	FFmpegBinary            string `toml:"ffmpeg_binary"`
	FFprobeBinary           string `toml:"ffprobe_binary"`
	ProgressPersistInterval int    `toml:"progress_persist_interval"`
}

// Editor selects how the editing application is reached.
type Editor struct {
	Driver         string `toml:"driver"`
	BridgeURL      string `toml:"bridge_url"`
	BridgeToken    string `toml:"bridge_token"`
	SnapshotPath   string `toml:"snapshot_path"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Logging contains log retention settings.
type Logging struct {
	RetentionDays int `toml:"retention_days"`
}

// Config encapsulates all configuration values.
//
// Configuration sections by subsystem:
//   - App: CLI log level, update checks, version-constrained routing
//   - Paths: proxy root and state/log directories
//   - Proxy: encode settings shipped with every job
//   - Filters: which timeline media is eligible
//   - Chunking: segmenting long sources across workers
//   - Broker: the shared job store
//   - Worker: encode daemon behaviour
//   - Editor: bridge or snapshot access to the editing application
//   - Notifications: ntfy push notification settings
//   - Logging: retention of run and encode logs
type Config struct {
	App           App           `toml:"app"`
	Paths         Paths         `toml:"paths"`
	Proxy         Proxy         `toml:"proxy"`
	Filters       Filters       `toml:"filters"`
	Chunking      Chunking      `toml:"chunking"`
	Broker        Broker        `toml:"broker"`
	Worker        Worker        `toml:"worker"`
	Editor        Editor        `toml:"editor"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := loadEnvFile(cfg.Paths.EnvFile, resolvedPath); err != nil {
		return nil, "", false, err
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

// loadEnvFile reads KEY=value pairs into the process environment without
// overriding variables that are already set. A missing file is not an error.
func loadEnvFile(configured, configPath string) error {
	path := strings.TrimSpace(configured)
	if path == "" {
		path = filepath.Join(filepath.Dir(configPath), ".env")
	}
	expanded, err := expandPath(path)
	if err != nil {
		return fmt.Errorf("paths.env_file: %w", err)
	}
	if _, err := os.Stat(expanded); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat env file: %w", err)
	}
	if err := godotenv.Load(expanded); err != nil {
		return fmt.Errorf("load env file %s: %w", expanded, err)
	}
	return nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path == "" {
		if env, ok := os.LookupEnv(envConfigPath); ok && strings.TrimSpace(env) != "" {
			path = strings.TrimSpace(env)
		}
	}
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}
	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	return defaultPath, false, nil
}

// EnsureDirectories creates the directories the queuer and workers write to.
// The proxy root is created on a best-effort basis so a worker can start
// while shared storage is temporarily unmounted.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.LogDir, c.Paths.StateDir, c.Paths.EncodeLogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if strings.TrimSpace(c.Paths.ProxyPathRoot) != "" {
		_ = os.MkdirAll(c.Paths.ProxyPathRoot, 0o755)
	}
	return nil
}

// QueueName returns the routing key that pairs queuers with workers built
// from the same commit. Constraining is skipped when disabled in config or
// when the build carries no commit information.
func (c *Config) QueueName(commitSHA string) string {
	sha := strings.TrimSpace(commitSHA)
	if c.App.DisableVersionConstrain || sha == "" {
		return defaultQueueName
	}
	if len(sha) > 7 {
		sha = sha[:7]
	}
	return sha
}

// WorkerLockPath is the flock file guarding one worker daemon per state dir.
func (c *Config) WorkerLockPath() string {
	return filepath.Join(c.Paths.StateDir, "worker.lock")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
