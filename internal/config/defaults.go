package config

// Layer 0 of the override chain.
const (
	defaultPollInterval     = "5s"
	defaultDebounce         = "500ms"
	defaultConflictStrategy = "ask"
	defaultTransport        = TransportSSH
	defaultSSHCommand       = "ssh"
	defaultSCPCommand       = "scp"
	defaultRsyncCommand     = "rsync"
	defaultCommandTimeout   = "30s"
	defaultTransferTimeout  = "60s"
	defaultCommandsPerSec   = 20
	defaultBandwidthLimit   = "0"
	defaultLogLevel         = "info"
	defaultLogFormat        = "auto"
)

// Transport names.
const (
	TransportSSH    = "ssh"
	TransportNative = "native"
)

// DefaultConfig returns a Config populated with all default values. It is
// the starting point for TOML decoding, so unset fields keep their defaults.
func DefaultConfig() *Config {
	return &Config{
		Watch: WatchConfig{
			PollInterval:     defaultPollInterval,
			Debounce:         defaultDebounce,
			ConflictStrategy: defaultConflictStrategy,
		},
		Remote: RemoteConfig{
			Transport:            defaultTransport,
			SSHCommand:           defaultSSHCommand,
			SCPCommand:           defaultSCPCommand,
			RsyncCommand:         defaultRsyncCommand,
			CommandTimeout:       defaultCommandTimeout,
			TransferTimeout:      defaultTransferTimeout,
			MaxCommandsPerSecond: defaultCommandsPerSec,
			BandwidthLimit:       defaultBandwidthLimit,
		},
		Filter: FilterConfig{
			Exclude: []string{"**/.git/**", "**/*.swp", "**/.DS_Store"},
		},
		Logging: LoggingConfig{
			LogLevel:  defaultLogLevel,
			LogFormat: defaultLogFormat,
		},
		Bookmarks: make(map[string]string),
	}
}
