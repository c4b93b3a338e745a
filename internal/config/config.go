// Package config implements TOML configuration loading, validation, and
// path resolution for sshcp. Settings resolve through four layers:
// defaults -> config file -> environment -> CLI flags.
package config

import "time"

// Config is the top-level configuration structure parsed from a TOML file.
type Config struct {
	Host      string            `toml:"host"`
	Watch     WatchConfig       `toml:"watch"`
	Remote    RemoteConfig      `toml:"remote"`
	Filter    FilterConfig      `toml:"filter"`
	Logging   LoggingConfig     `toml:"logging"`
	Bookmarks map[string]string `toml:"bookmarks"`
}

// WatchConfig controls the cadence and conflict handling of `sshcp watch`.
type WatchConfig struct {
	PollInterval     string `toml:"poll_interval"`
	Debounce         string `toml:"debounce"`
	ConflictStrategy string `toml:"conflict_strategy"`
}

// RemoteConfig selects and tunes the transport to the remote host.
type RemoteConfig struct {
	Transport            string  `toml:"transport"`
	SSHCommand           string  `toml:"ssh_command"`
	SCPCommand           string  `toml:"scp_command"`
	RsyncCommand         string  `toml:"rsync_command"`
	CommandTimeout       string  `toml:"command_timeout"`
	TransferTimeout      string  `toml:"transfer_timeout"`
	MaxCommandsPerSecond float64 `toml:"max_commands_per_second"`
	BandwidthLimit       string  `toml:"bandwidth_limit"`
	Port                 int     `toml:"port"`
	User                 string  `toml:"user"`
	IdentityFile         string  `toml:"identity_file"`
	KnownHosts           string  `toml:"known_hosts"`
}

// FilterConfig lists doublestar patterns ignored on both sides.
type FilterConfig struct {
	Exclude []string `toml:"exclude"`
}

// LoggingConfig controls log verbosity and handler format.
type LoggingConfig struct {
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
}

// CLIOverrides holds values from global CLI flags. Empty means "not given".
type CLIOverrides struct {
	ConfigPath string // --config
	Host       string // --host
}

// Resolved is a loaded, validated configuration with every string setting
// parsed into its typed form and every path expanded.
type Resolved struct {
	*Config

	Path string // config file the settings came from (may not exist yet)

	PollInterval    time.Duration
	Debounce        time.Duration
	CommandTimeout  time.Duration
	TransferTimeout time.Duration
	BandwidthLimit  int64 // bytes per second, 0 = unlimited
}
