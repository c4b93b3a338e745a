package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/sshcp/sshcp/internal/remote"
)

// Load reads and parses a TOML config file, validates it, and returns the
// resulting Config. Unknown keys are fatal and come with a suggestion when
// a known key is close.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := checkUnknownKeys(&md); err != nil {
		return nil, err
	}

	if cfg.Bookmarks == nil {
		cfg.Bookmarks = make(map[string]string)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault reads path if it exists and returns defaults otherwise.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}

	return Load(path)
}

// Resolve loads configuration and applies the override chain:
// defaults -> config file -> environment -> CLI flags.
func Resolve(env EnvOverrides, cli CLIOverrides) (*Resolved, error) {
	cfgPath := DefaultConfigPath()
	if env.ConfigPath != "" {
		cfgPath = env.ConfigPath
	}

	if cli.ConfigPath != "" {
		cfgPath = cli.ConfigPath
	}

	cfg, err := LoadOrDefault(cfgPath)
	if err != nil {
		return nil, err
	}

	if env.Host != "" {
		cfg.Host = env.Host
	}

	if cli.Host != "" {
		cfg.Host = cli.Host
	}

	return resolve(cfg, cfgPath)
}

// resolve parses the string settings of an already validated Config.
func resolve(cfg *Config, path string) (*Resolved, error) {
	r := &Resolved{Config: cfg, Path: path}

	durations := []struct {
		value string
		dst   *time.Duration
	}{
		{cfg.Watch.PollInterval, &r.PollInterval},
		{cfg.Watch.Debounce, &r.Debounce},
		{cfg.Remote.CommandTimeout, &r.CommandTimeout},
		{cfg.Remote.TransferTimeout, &r.TransferTimeout},
	}

	for _, d := range durations {
		parsed, err := time.ParseDuration(d.value)
		if err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}

		*d.dst = parsed
	}

	bw, err := remote.ParseBandwidth(cfg.Remote.BandwidthLimit)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	r.BandwidthLimit = bw

	for _, p := range []*string{&cfg.Remote.IdentityFile, &cfg.Remote.KnownHosts} {
		expanded, err := ExpandPath(*p)
		if err != nil {
			return nil, fmt.Errorf("config: expanding %q: %w", *p, err)
		}

		*p = expanded
	}

	return r, nil
}

// RequireHost returns the configured host or an error telling the user how
// to set one.
func (r *Resolved) RequireHost() (string, error) {
	if r.Host == "" {
		return "", errors.New("no remote host configured; run 'sshcp host set <host>' or pass --host")
	}

	return r.Host, nil
}
