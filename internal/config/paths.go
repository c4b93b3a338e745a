package config

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/mitchellh/go-homedir"
)

const (
	platformDarwin = "darwin"
	appName        = "sshcp"
	configFileName = "config.toml"
	journalName    = "journal.db"
)

// DefaultConfigDir returns the directory holding config.toml. XDG_CONFIG_HOME
// is honored everywhere; macOS otherwise uses Application Support.
func DefaultConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, appName)
	}

	home, err := homedir.Dir()
	if err != nil {
		return ""
	}

	if runtime.GOOS == platformDarwin {
		return filepath.Join(home, "Library", "Application Support", appName)
	}

	return filepath.Join(home, ".config", appName)
}

// DefaultDataDir returns the directory for the conflict journal and session
// lock files.
func DefaultDataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, appName)
	}

	home, err := homedir.Dir()
	if err != nil {
		return ""
	}

	if runtime.GOOS == platformDarwin {
		return filepath.Join(home, "Library", "Application Support", appName)
	}

	return filepath.Join(home, ".local", "share", appName)
}

// DefaultConfigPath returns the config file used when neither SSHCP_CONFIG
// nor --config is given.
func DefaultConfigPath() string {
	dir := DefaultConfigDir()
	if dir == "" {
		return ""
	}

	return filepath.Join(dir, configFileName)
}

// JournalPath returns the conflict journal database path.
func JournalPath() string {
	return filepath.Join(DefaultDataDir(), journalName)
}

// ExpandPath expands a leading ~ and makes the result absolute.
func ExpandPath(p string) (string, error) {
	if p == "" {
		return "", nil
	}

	expanded, err := homedir.Expand(p)
	if err != nil {
		return "", err
	}

	return filepath.Abs(expanded)
}
