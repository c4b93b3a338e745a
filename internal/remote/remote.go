package remote

import (
	"context"
	"time"
)

// Default timeouts for remote operations.
const (
	DefaultCommandTimeout  = 30 * time.Second
	DefaultTransferTimeout = 60 * time.Second
)

// Executor runs a shell command on the remote host. The command succeeded iff
// the returned error is nil. Stdout is returned with surrounding whitespace
// trimmed. A command that does not finish within timeout fails with
// ErrTimeout.
type Executor interface {
	Run(ctx context.Context, command string, timeout time.Duration) (string, error)
}

// Transferer copies single files between the local machine and the remote
// host. Remote paths are absolute paths on the remote host.
type Transferer interface {
	Upload(ctx context.Context, localPath, remotePath string) error
	Download(ctx context.Context, remotePath, localPath string) error
}

// Backend is a connected remote: it can both run commands and move files.
type Backend interface {
	Executor
	Transferer
	Close() error
}
