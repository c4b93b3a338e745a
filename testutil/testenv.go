// Package testutil provides shared helpers for end-to-end tests, which
// drive the built binary and cannot import internal/.
package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

// EnvE2EHost names the ssh destination used by live end-to-end tests.
const EnvE2EHost = "SSHCP_E2E_HOST"

// EnvE2ERoot names the remote scratch directory used by live tests.
const EnvE2ERoot = "SSHCP_E2E_REMOTE_ROOT"

// LoadDotEnv reads KEY=VALUE pairs from envPath. A missing file is not an
// error (CI sets variables directly) and variables already set win.
func LoadDotEnv(envPath string) {
	if _, err := os.Stat(envPath); err != nil {
		return
	}

	if err := godotenv.Load(envPath); err != nil {
		fmt.Fprintf(os.Stderr, "WARNING: ignoring %s: %v\n", envPath, err)
	}
}

// LiveHost returns the host and remote scratch root for live tests, or ok
// false when they are not configured. The scratch root must look like a
// throwaway directory because tests delete inside it.
func LiveHost() (host, root string, ok bool) {
	host = os.Getenv(EnvE2EHost)
	root = os.Getenv(EnvE2ERoot)

	if host == "" || root == "" {
		return "", "", false
	}

	if !strings.Contains(root, "sshcp-e2e") {
		fmt.Fprintf(os.Stderr, "FATAL: %s=%q must contain \"sshcp-e2e\"\n", EnvE2ERoot, root)
		os.Exit(1)
	}

	return host, root, true
}

// FindModuleRoot walks up from the current directory to find go.mod.
// Returns the fallback if the root is not found.
func FindModuleRoot(fallback string) string {
	dir, err := os.Getwd()
	if err != nil {
		return fallback
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return fallback
		}

		dir = parent
	}
}
