package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// SSHOptions configures the system-binary backend.
type SSHOptions struct {
	Host            string // ssh destination, usually an alias from ~/.ssh/config
	SSHCommand      string // defaults to "ssh"
	SCPCommand      string // defaults to "scp"
	RsyncCommand    string // defaults to "rsync"
	Port            int    // 0 keeps the ssh default
	User            string
	IdentityFile    string
	KnownHosts      string // passed as UserKnownHostsFile when set
	TransferTimeout time.Duration
	BandwidthLimit  int64 // bytes per second for scp and rsync; 0 is unlimited
}

// commandRunner runs a local binary and returns its stdout and stderr.
// Tests replace it to capture argument vectors.
type commandRunner func(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)

// SSH runs remote commands by spawning the ssh binary and transfers files
// with scp. Authentication, host aliases and multiplexing are whatever the
// user's ssh configuration provides.
type SSH struct {
	opts   SSHOptions
	logger *slog.Logger
	run    commandRunner
}

// NewSSH creates a system-binary backend.
func NewSSH(opts SSHOptions, logger *slog.Logger) *SSH {
	if logger == nil {
		logger = slog.Default()
	}

	if opts.SSHCommand == "" {
		opts.SSHCommand = "ssh"
	}

	if opts.SCPCommand == "" {
		opts.SCPCommand = "scp"
	}

	if opts.RsyncCommand == "" {
		opts.RsyncCommand = "rsync"
	}

	if opts.TransferTimeout <= 0 {
		opts.TransferTimeout = DefaultTransferTimeout
	}

	return &SSH{opts: opts, logger: logger, run: execRunner}
}

// Host returns the configured destination.
func (s *SSH) Host() string {
	return s.opts.Host
}

// Run executes command on the remote host via ssh.
func (s *SSH) Run(ctx context.Context, command string, timeout time.Duration) (string, error) {
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}

	args := append(s.sshArgs(), s.destination(), command)

	stdout, err := s.exec(ctx, timeout, command, s.opts.SSHCommand, args...)
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(string(stdout)), nil
}

// Upload copies a local file to remotePath with scp -q.
func (s *SSH) Upload(ctx context.Context, localPath, remotePath string) error {
	return s.Copy(ctx, localPath, s.remoteSpec(remotePath), false)
}

// Download copies remotePath to a local file with scp -q.
func (s *SSH) Download(ctx context.Context, remotePath, localPath string) error {
	return s.Copy(ctx, s.remoteSpec(remotePath), localPath, false)
}

// Copy runs scp from src to dst. One of them is expected to be a
// "host:path" target built with RemoteSpec. recursive adds -r for directories.
func (s *SSH) Copy(ctx context.Context, src, dst string, recursive bool) error {
	args := []string{"-q"}
	if recursive {
		args = append(args, "-r")
	}

	if s.opts.BandwidthLimit > 0 {
		args = append(args, "-l", strconv.FormatInt(scpLimit(s.opts.BandwidthLimit), 10))
	}

	args = append(args, s.scpArgs()...)
	args = append(args, src, dst)

	_, err := s.exec(ctx, s.opts.TransferTimeout, "scp "+src+" "+dst, s.opts.SCPCommand, args...)

	return err
}

// RemoteSpec returns the "[user@]host:path" form scp and rsync expect.
func (s *SSH) RemoteSpec(p string) string {
	return s.remoteSpec(p)
}

func (s *SSH) remoteSpec(p string) string {
	return s.destination() + ":" + p
}

func (s *SSH) destination() string {
	if s.opts.User != "" {
		return s.opts.User + "@" + s.opts.Host
	}

	return s.opts.Host
}

// sshArgs are the options shared by every ssh invocation. BatchMode keeps a
// password prompt from hanging the watch loop.
func (s *SSH) sshArgs() []string {
	return s.toolArgs("-p")
}

// scpArgs mirrors sshArgs; scp spells the port flag -P.
func (s *SSH) scpArgs() []string {
	return s.toolArgs("-P")
}

func (s *SSH) toolArgs(portFlag string) []string {
	args := []string{"-o", "BatchMode=yes"}

	if s.opts.KnownHosts != "" {
		args = append(args, "-o", "UserKnownHostsFile="+s.opts.KnownHosts)
	}

	if s.opts.Port > 0 {
		args = append(args, portFlag, strconv.Itoa(s.opts.Port))
	}

	if s.opts.IdentityFile != "" {
		args = append(args, "-i", s.opts.IdentityFile)
	}

	return args
}

// exec runs a binary under a timeout and classifies failures into
// ErrTimeout or a *CommandError wrapping ErrCommandFailed.
func (s *SSH) exec(
	ctx context.Context, timeout time.Duration, label, name string, args ...string,
) ([]byte, error) {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	stdout, stderr, err := s.run(runCtx, name, args...)

	s.logger.Debug("remote command finished",
		slog.String("command", label),
		slog.Duration("elapsed", time.Since(start)),
		slog.Bool("ok", err == nil),
	)

	if err == nil {
		return stdout, nil
	}

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return nil, fmt.Errorf("%w after %s: %s", ErrTimeout, timeout, label)
	}

	if ctx.Err() != nil {
		return nil, fmt.Errorf("remote: %s canceled: %w", label, ctx.Err())
	}

	exitCode := -1

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		exitCode = exitErr.ExitCode()
	}

	return nil, &CommandError{
		Command:  label,
		ExitCode: exitCode,
		Stderr:   strings.TrimSpace(string(stderr)),
		Err:      ErrCommandFailed,
	}
}

func execRunner(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	var stdout, stderr bytes.Buffer

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	return stdout.Bytes(), stderr.Bytes(), err
}

// Close is a no-op: every command is its own process.
func (s *SSH) Close() error {
	return nil
}
