package config

const (
	defaultConfigPath = "~/.config/proxyencoder/config.toml"
	envConfigPath     = "PROXYENCODER_CONFIG"
	envPostgresDSN    = "PROXYENCODER_POSTGRES_DSN"
	envBridgeToken    = "PROXYENCODER_BRIDGE_TOKEN"
	envNtfyTopic      = "PROXYENCODER_NTFY_TOPIC"
	defaultQueueName  = "default"

	defaultProxyPathRoot = "~/Videos/proxies"
	defaultEncodeLogDir  = "~/.local/state/proxyencoder/encode-logs"
	defaultLogDir        = "~/.local/state/proxyencoder/logs"
	defaultStateDir      = "~/.local/share/proxyencoder"
	defaultUpdateRepo    = "in03/proxy-encoder"
	defaultUpdateBranch  = "main"

	defaultCodec           = "dnxhd"
	defaultProfile         = "dnxhr_sq"
	defaultVerticalRes     = 720
	defaultPixFmt          = "yuv422p"
	defaultAudioCodec      = "pcm_s16le"
	defaultAudioSampleRate = 48000
	defaultProxyExt        = ".mov"
	defaultFFmpegLogLevel  = "error"

	defaultChunkThreshold = 600
	defaultChunkDuration  = 300

	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"

	defaultPollInterval  = 5
	defaultResultExpires = 24

	defaultConcurrency             = 1
	defaultHeartbeatInterval       = 15
	defaultHeartbeatTimeout        = 120
	defaultMaxAttempts             = 3
	defaultFFmpegBinary            = "ffmpeg"
	defaultFFprobeBinary           = "ffprobe"
	defaultProgressPersistInterval = 2

	DriverBridge   = "bridge"
	DriverSnapshot = "snapshot"

	defaultBridgeURL            = "http://127.0.0.1:7600"
	defaultEditorRequestTimeout = 10
	defaultNotifyRequestTimeout = 10
	defaultLogRetentionDays     = 30
	defaultLogLevel             = "info"
	defaultLogFormat            = "console"
)

var validFFmpegLogLevels = []string{"quiet", "panic", "fatal", "error", "warning", "info", "verbose", "debug"}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		App: App{
			LogLevel:        defaultLogLevel,
			LogFormat:       defaultLogFormat,
			CheckForUpdates: true,
			UpdateRepo:      defaultUpdateRepo,
			UpdateBranch:    defaultUpdateBranch,
		},
		Paths: Paths{
			ProxyPathRoot: defaultProxyPathRoot,
			EncodeLogDir:  defaultEncodeLogDir,
			LogDir:        defaultLogDir,
			StateDir:      defaultStateDir,
		},
		Proxy: Proxy{
			Codec:           defaultCodec,
			Profile:         defaultProfile,
			VerticalRes:     defaultVerticalRes,
			PixFmt:          defaultPixFmt,
			AudioCodec:      defaultAudioCodec,
			AudioSampleRate: defaultAudioSampleRate,
			Ext:             defaultProxyExt,
			FFmpegLogLevel:  defaultFFmpegLogLevel,
			Overwrite:       true,
		},
		Filters: Filters{
			ExtensionWhitelist: []string{".mp4", ".mov", ".mxf"},
		},
		Chunking: Chunking{
			ChunkThreshold: defaultChunkThreshold,
			ChunkDuration:  defaultChunkDuration,
		},
		Broker: Broker{
			Backend:       BackendSQLite,
			PollInterval:  defaultPollInterval,
			ResultExpires: defaultResultExpires,
		},
		Worker: Worker{
			LogLevel:                defaultLogLevel,
			Concurrency:             defaultConcurrency,
			HeartbeatInterval:       defaultHeartbeatInterval,
			HeartbeatTimeout:        defaultHeartbeatTimeout,
			MaxAttempts:             defaultMaxAttempts,
			FFmpegBinary:            defaultFFmpegBinary,
			FFprobeBinary:           defaultFFprobeBinary,
			ProgressPersistInterval: defaultProgressPersistInterval,
		},
		Editor: Editor{
			Driver:         DriverBridge,
			BridgeURL:      defaultBridgeURL,
			RequestTimeout: defaultEditorRequestTimeout,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
		},
		Logging: Logging{
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
