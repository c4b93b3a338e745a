// Package remote runs shell commands on a remote host and moves files to and
// from it. Two backends exist: SSH spawns the system ssh/scp/rsync binaries,
// Native speaks the SSH protocol in-process and transfers over SFTP.
package remote

import (
	"errors"
	"fmt"
)

// Sentinel errors for remote command classification.
// Use errors.Is(err, remote.ErrTimeout) to check.
var (
	ErrCommandFailed = errors.New("remote: command failed")
	ErrTimeout       = errors.New("remote: command timed out")
	ErrNotConnected  = errors.New("remote: not connected")
)

// CommandError wraps a sentinel error with the command that failed, its exit
// status and whatever it wrote to stderr.
type CommandError struct {
	Command  string
	ExitCode int
	Stderr   string
	Err      error // sentinel, for errors.Is()
}

func (e *CommandError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("remote: %q exited %d: %s", e.Command, e.ExitCode, e.Stderr)
	}

	return fmt.Sprintf("remote: %q exited %d", e.Command, e.ExitCode)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is a recoverable remote failure: a timeout
// or a non-zero exit. The caller should leave state unchanged and let the
// next cycle retry.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrCommandFailed)
}
