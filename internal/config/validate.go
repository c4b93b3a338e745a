package config

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/sshcp/sshcp/internal/remote"
	"github.com/sshcp/sshcp/internal/sync"
)

const (
	minPollInterval = 1 * time.Second
	minDebounce     = 10 * time.Millisecond
	minTimeout      = 1 * time.Second
	maxPort         = 65535
)

var (
	validLogLevels  = []string{"debug", "info", "warn", "error"}
	validLogFormats = []string{"auto", "text", "json"}
	validTransports = []string{TransportSSH, TransportNative}
)

// Validate checks every setting and returns all problems at once, so a user
// can fix a broken file in a single pass.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateWatch(&cfg.Watch)...)
	errs = append(errs, validateRemote(&cfg.Remote)...)
	errs = append(errs, validateFilter(&cfg.Filter)...)
	errs = append(errs, validateLogging(&cfg.Logging)...)
	errs = append(errs, validateBookmarks(cfg.Bookmarks)...)

	return errors.Join(errs...)
}

func validateWatch(w *WatchConfig) []error {
	var errs []error

	if err := validateDuration("watch.poll_interval", w.PollInterval, minPollInterval); err != nil {
		errs = append(errs, err)
	}

	if err := validateDuration("watch.debounce", w.Debounce, minDebounce); err != nil {
		errs = append(errs, err)
	}

	if !slices.Contains(sync.Strategies, strings.ToLower(w.ConflictStrategy)) {
		errs = append(errs, fmt.Errorf("watch.conflict_strategy: must be one of %s, got %q",
			strings.Join(sync.Strategies, ", "), w.ConflictStrategy))
	}

	return errs
}

func validateRemote(r *RemoteConfig) []error {
	var errs []error

	if !slices.Contains(validTransports, r.Transport) {
		errs = append(errs, fmt.Errorf("remote.transport: must be one of %s, got %q",
			strings.Join(validTransports, ", "), r.Transport))
	}

	commands := []struct{ field, value string }{
		{"remote.ssh_command", r.SSHCommand},
		{"remote.scp_command", r.SCPCommand},
		{"remote.rsync_command", r.RsyncCommand},
	}

	for _, c := range commands {
		if strings.TrimSpace(c.value) == "" {
			errs = append(errs, fmt.Errorf("%s: must not be empty", c.field))
		}
	}

	if err := validateDuration("remote.command_timeout", r.CommandTimeout, minTimeout); err != nil {
		errs = append(errs, err)
	}

	if err := validateDuration("remote.transfer_timeout", r.TransferTimeout, minTimeout); err != nil {
		errs = append(errs, err)
	}

	if r.MaxCommandsPerSecond < 0 {
		errs = append(errs, fmt.Errorf("remote.max_commands_per_second: must be >= 0, got %g",
			r.MaxCommandsPerSecond))
	}

	if r.Port < 0 || r.Port > maxPort {
		errs = append(errs, fmt.Errorf("remote.port: must be between 0 and %d, got %d", maxPort, r.Port))
	}

	if _, err := remote.ParseBandwidth(r.BandwidthLimit); err != nil {
		errs = append(errs, fmt.Errorf("remote.bandwidth_limit: %w", err))
	}

	return errs
}

func validateFilter(f *FilterConfig) []error {
	var errs []error

	for _, p := range f.Exclude {
		if !doublestar.ValidatePattern(p) {
			errs = append(errs, fmt.Errorf("filter.exclude: invalid pattern %q", p))
		}
	}

	return errs
}

func validateLogging(l *LoggingConfig) []error {
	var errs []error

	if !slices.Contains(validLogLevels, l.LogLevel) {
		errs = append(errs, fmt.Errorf("logging.log_level: must be one of %s, got %q",
			strings.Join(validLogLevels, ", "), l.LogLevel))
	}

	if !slices.Contains(validLogFormats, l.LogFormat) {
		errs = append(errs, fmt.Errorf("logging.log_format: must be one of %s, got %q",
			strings.Join(validLogFormats, ", "), l.LogFormat))
	}

	return errs
}

func validateBookmarks(bookmarks map[string]string) []error {
	var errs []error

	for _, name := range slices.Sorted(maps.Keys(bookmarks)) {
		if !ValidBookmarkName(name) {
			errs = append(errs, fmt.Errorf("bookmarks: invalid name %q", name))
		}

		if bookmarks[name] == "" {
			errs = append(errs, fmt.Errorf("bookmarks.%s: path must not be empty", name))
		}
	}

	return errs
}

// validateDuration parses value and enforces a lower bound.
func validateDuration(field, value string, minimum time.Duration) error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("%s: invalid duration %q: %w", field, value, err)
	}

	if d < minimum {
		return fmt.Errorf("%s: must be >= %s, got %s", field, minimum, d)
	}

	return nil
}
