package main

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

const lockDirPermissions = 0o755

// errRootLocked means another watch session already owns the local root.
var errRootLocked = errors.New("another sshcp watch is already running for this directory")

// rootLockPath names the lock file for localRoot. The name is a hash of
// the absolute path so any directory maps to a flat, valid file name.
func rootLockPath(dataDir, localRoot string) string {
	sum := sha256.Sum256([]byte(localRoot))

	return filepath.Join(dataDir, "locks", "watch-"+hex.EncodeToString(sum[:8])+".lock")
}

// lockLocalRoot takes a non-blocking exclusive lock on localRoot. The
// returned release function unlocks and removes the lock file.
func lockLocalRoot(dataDir, localRoot string) (release func(), err error) {
	if dataDir == "" {
		return nil, errors.New("cannot determine data directory for the session lock")
	}

	path := rootLockPath(dataDir, localRoot)
	if err := os.MkdirAll(filepath.Dir(path), lockDirPermissions); err != nil {
		return nil, fmt.Errorf("creating lock directory: %w", err)
	}

	fl := flock.New(path)

	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("locking %s: %w", path, err)
	}

	if !locked {
		return nil, fmt.Errorf("%w (%s)", errRootLocked, localRoot)
	}

	return func() {
		fl.Unlock()
		os.Remove(path)
	}, nil
}
