package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Sentinel errors for bookmark edits.
var (
	ErrBookmarkExists   = errors.New("config: bookmark already exists")
	ErrBookmarkNotFound = errors.New("config: bookmark not found")
	ErrBookmarkName     = errors.New("config: bookmark names may contain only letters, digits, '_' and '-'")
)

const (
	configDirPerm  = 0o755
	configFilePerm = 0o644
)

// Save encodes cfg as TOML and writes it atomically to path.
func Save(path string, cfg *Config) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	return atomicWriteFile(path, buf.Bytes())
}

// SetHost stores host as the selected remote host in the file at path.
func SetHost(path, host string) error {
	return update(path, func(cfg *Config) error {
		cfg.Host = host
		return nil
	})
}

// AddBookmark saves a new bookmark. Existing names are never overwritten.
func AddBookmark(path, name, target string) error {
	if !ValidBookmarkName(name) {
		return fmt.Errorf("%w: %q", ErrBookmarkName, name)
	}

	return update(path, func(cfg *Config) error {
		if _, ok := cfg.Bookmarks[name]; ok {
			return fmt.Errorf("%w: %s", ErrBookmarkExists, name)
		}

		cfg.Bookmarks[name] = target

		return nil
	})
}

// RemoveBookmark deletes a bookmark.
func RemoveBookmark(path, name string) error {
	return update(path, func(cfg *Config) error {
		if _, ok := cfg.Bookmarks[name]; !ok {
			return fmt.Errorf("%w: %s", ErrBookmarkNotFound, name)
		}

		delete(cfg.Bookmarks, name)

		return nil
	})
}

// update loads the file (or defaults), applies fn, and saves the result.
func update(path string, fn func(*Config) error) error {
	cfg, err := LoadOrDefault(path)
	if err != nil {
		return err
	}

	if err := fn(cfg); err != nil {
		return err
	}

	return Save(path, cfg)
}

// atomicWriteFile writes data to a temp file in the target directory and
// renames it into place, so readers never see a partial config.
func atomicWriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, configDirPerm); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".config-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}

	tmpPath := tmp.Name()
	success := false

	defer func() {
		if !success {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("writing temp file: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Chmod(tmpPath, configFilePerm); err != nil {
		return fmt.Errorf("setting config permissions: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming config file: %w", err)
	}

	success = true

	return nil
}
