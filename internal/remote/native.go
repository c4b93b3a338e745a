package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"
)

const (
	defaultSSHPort    = 22
	defaultKnownHosts = "~/.ssh/known_hosts"
	dialTimeout       = 15 * time.Second

	// abortGrace bounds the wait for a transfer or command to notice that it
	// was abandoned before the connection-level fallback kicks in.
	abortGrace = 5 * time.Second

	partialPrefix = ".sshcp-"
	partialSuffix = ".partial"
)

// IsPartialName reports whether base is the name of an in-progress download.
// The watch ignores such files.
func IsPartialName(base string) bool {
	return strings.HasPrefix(base, partialPrefix) && strings.HasSuffix(base, partialSuffix)
}

// NativeOptions configures the in-process SSH backend.
type NativeOptions struct {
	Host            string
	Port            int
	User            string
	IdentityFile    string
	KnownHosts      string
	TransferTimeout time.Duration
	BandwidthLimit  int64 // bytes per second across all transfers; 0 is unlimited
}

// Native holds one SSH connection for the whole session and multiplexes
// commands over it as separate channels. Files move over one SFTP
// subsystem on the same connection.
type Native struct {
	opts   NativeOptions
	client *ssh.Client
	bw     *BandwidthLimiter
	logger *slog.Logger

	// mu guards sftp. A transfer that cannot be unblocked any other way
	// closes the SFTP client; the next transfer opens a new one.
	mu   sync.Mutex
	sftp *sftp.Client
}

// DialNative connects and authenticates. Keys come from the running
// ssh-agent and, if set, IdentityFile. Host keys are checked against
// KnownHosts.
func DialNative(ctx context.Context, opts NativeOptions, logger *slog.Logger) (*Native, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if opts.Port <= 0 {
		opts.Port = defaultSSHPort
	}

	if opts.User == "" {
		opts.User = os.Getenv("USER")
	}

	if opts.TransferTimeout <= 0 {
		opts.TransferTimeout = DefaultTransferTimeout
	}

	auth, err := authMethods(opts.IdentityFile)
	if err != nil {
		return nil, err
	}

	hostKeys, err := hostKeyCallback(opts.KnownHosts)
	if err != nil {
		return nil, err
	}

	cfg := &ssh.ClientConfig{
		User:            opts.User,
		Auth:            auth,
		HostKeyCallback: hostKeys,
		Timeout:         dialTimeout,
	}

	addr := net.JoinHostPort(opts.Host, strconv.Itoa(opts.Port))

	dialer := net.Dialer{Timeout: dialTimeout}

	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("remote: dialing %s: %w", addr, err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("remote: ssh handshake with %s: %w", addr, err)
	}

	client := ssh.NewClient(sshConn, chans, reqs)

	sftpClient, err := sftp.NewClient(client)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("remote: starting sftp on %s: %w", addr, err)
	}

	logger.Info("native ssh connected",
		slog.String("addr", addr),
		slog.String("user", opts.User),
	)

	return &Native{
		opts:   opts,
		client: client,
		sftp:   sftpClient,
		bw:     NewBandwidthLimiter(opts.BandwidthLimit, logger),
		logger: logger,
	}, nil
}

func authMethods(identityFile string) ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod

	if sock := os.Getenv("SSH_AUTH_SOCK"); sock != "" {
		if conn, err := net.Dial("unix", sock); err == nil {
			methods = append(methods, ssh.PublicKeysCallback(agent.NewClient(conn).Signers))
		}
	}

	if identityFile != "" {
		p, err := homedir.Expand(identityFile)
		if err != nil {
			return nil, fmt.Errorf("remote: expanding identity file: %w", err)
		}

		pem, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("remote: reading identity file: %w", err)
		}

		signer, err := ssh.ParsePrivateKey(pem)
		if err != nil {
			return nil, fmt.Errorf("remote: parsing identity file %s: %w", p, err)
		}

		methods = append(methods, ssh.PublicKeys(signer))
	}

	if len(methods) == 0 {
		return nil, errors.New("remote: no ssh agent and no identity file configured")
	}

	return methods, nil
}

func hostKeyCallback(knownHostsFile string) (ssh.HostKeyCallback, error) {
	if knownHostsFile == "" {
		knownHostsFile = defaultKnownHosts
	}

	p, err := homedir.Expand(knownHostsFile)
	if err != nil {
		return nil, fmt.Errorf("remote: expanding known_hosts path: %w", err)
	}

	cb, err := knownhosts.New(p)
	if err != nil {
		return nil, fmt.Errorf("remote: loading known_hosts %s: %w", p, err)
	}

	return cb, nil
}

// Run executes command in a new session channel. The remote shell runs it,
// so the same command strings work for both backends. On timeout or
// cancellation the channel is closed and Run waits for the command to wind
// down before returning.
func (n *Native) Run(ctx context.Context, command string, timeout time.Duration) (string, error) {
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}

	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("remote: %s canceled: %w", command, err)
	}

	session, err := n.client.NewSession()
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrNotConnected, err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	done := make(chan error, 1)

	go func() { done <- session.Run(command) }()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err = <-done:
	case <-timer.C:
		n.abandon(session, done, command)
		return "", fmt.Errorf("%w after %s: %s", ErrTimeout, timeout, command)
	case <-ctx.Done():
		n.abandon(session, done, command)
		return "", fmt.Errorf("remote: %s canceled: %w", command, ctx.Err())
	}

	if err != nil {
		exitCode := -1

		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitStatus()
		}

		return "", &CommandError{
			Command:  command,
			ExitCode: exitCode,
			Stderr:   strings.TrimSpace(stderr.String()),
			Err:      ErrCommandFailed,
		}
	}

	return strings.TrimSpace(stdout.String()), nil
}

// abandon closes a command's channel and waits for its Run to return.
func (n *Native) abandon(session *ssh.Session, done <-chan error, command string) {
	session.Signal(ssh.SIGTERM) //nolint:errcheck // many servers ignore signals
	session.Close()

	select {
	case <-done:
	case <-time.After(abortGrace):
		n.logger.Warn("remote command did not stop after its channel closed",
			slog.String("command", command))
	}
}

// sftpClient returns the SFTP client, reopening it if an abandoned transfer
// closed it.
func (n *Native) sftpClient() (*sftp.Client, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.sftp != nil {
		return n.sftp, nil
	}

	c, err := sftp.NewClient(n.client)
	if err != nil {
		return nil, fmt.Errorf("%w: reopening sftp: %w", ErrNotConnected, err)
	}

	n.sftp = c

	return c, nil
}

// resetSFTP closes the SFTP client, failing every request still pending on
// it.
func (n *Native) resetSFTP() {
	n.mu.Lock()
	c := n.sftp
	n.sftp = nil
	n.mu.Unlock()

	if c != nil {
		c.Close()
	}

	n.logger.Warn("sftp client reset after a stuck transfer")
}

// Upload streams a local file into remotePath over SFTP.
func (n *Native) Upload(ctx context.Context, localPath, remotePath string) error {
	return runTransfer(ctx, n.opts.TransferTimeout, "upload "+remotePath, n.resetSFTP, func(tr *transferRun) error {
		client, err := n.sftpClient()
		if err != nil {
			return err
		}

		src, err := os.Open(localPath)
		if err != nil {
			return err
		}
		defer src.Close()

		if err := tr.track(src); err != nil {
			return err
		}

		if err := client.MkdirAll(path.Dir(remotePath)); err != nil {
			return err
		}

		dst, err := client.Create(remotePath)
		if err != nil {
			return err
		}

		if err := tr.track(dst); err != nil {
			return err
		}

		if _, err := io.Copy(dst, n.bw.WrapReader(ctx, src)); err != nil {
			dst.Close()
			return err
		}

		return dst.Close()
	})
}

// Download streams remotePath into a hidden partial file next to localPath
// and renames it into place once complete, so a failed or abandoned
// download never leaves a truncated file under the real name.
func (n *Native) Download(ctx context.Context, remotePath, localPath string) error {
	return runTransfer(ctx, n.opts.TransferTimeout, "download "+remotePath, n.resetSFTP, func(tr *transferRun) error {
		client, err := n.sftpClient()
		if err != nil {
			return err
		}

		src, err := client.Open(remotePath)
		if err != nil {
			return err
		}
		defer src.Close()

		if err := tr.track(src); err != nil {
			return err
		}

		return writeFileAtomic(localPath, func(dst *os.File) error {
			if err := tr.track(dst); err != nil {
				return err
			}

			_, err := io.Copy(dst, n.bw.WrapReader(ctx, src))

			return err
		})
	})
}

// writeFileAtomic creates a partial file in localPath's directory, lets fill
// write it, and renames it over localPath. On any error the partial file is
// removed and localPath is left as it was.
func writeFileAtomic(localPath string, fill func(*os.File) error) (err error) {
	dir := filepath.Dir(localPath)

	if err := os.MkdirAll(dir, 0o755); err != nil { //nolint:mnd // standard dir perms
		return err
	}

	tmp, err := os.CreateTemp(dir, partialPrefix+filepath.Base(localPath)+"-*"+partialSuffix)
	if err != nil {
		return err
	}

	tmpPath := tmp.Name()

	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	if err := fill(tmp); err != nil {
		return err
	}

	if err := tmp.Chmod(0o644); err != nil { //nolint:mnd // scp's default file mode
		return err
	}

	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmpPath, localPath)
}

// errTransferAborted is returned to a transfer that tries to open a file
// after it was abandoned.
var errTransferAborted = errors.New("remote: transfer abandoned")

// transferRun tracks the files a transfer has open so an abandoned transfer
// can be unblocked by closing them.
type transferRun struct {
	mu      sync.Mutex
	closers []io.Closer
	aborted bool
}

// track registers c. After abort, c is closed at once and the transfer is
// told to stop.
func (tr *transferRun) track(c io.Closer) error {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	if tr.aborted {
		c.Close()
		return errTransferAborted
	}

	tr.closers = append(tr.closers, c)

	return nil
}

func (tr *transferRun) abort() {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	tr.aborted = true

	for _, c := range tr.closers {
		c.Close()
	}
}

// runTransfer runs fn in the background under timeout. When the timeout
// fires or ctx ends it closes fn's files and waits for fn to return, so no
// transfer keeps writing after its caller has moved on. If fn is still stuck
// after abortGrace, reset is called to fail its pending requests.
func runTransfer(
	ctx context.Context, timeout time.Duration, label string, reset func(), fn func(*transferRun) error,
) error {
	return runTransferGrace(ctx, timeout, abortGrace, label, reset, fn)
}

func runTransferGrace(
	ctx context.Context, timeout, grace time.Duration, label string, reset func(), fn func(*transferRun) error,
) error {
	if timeout <= 0 {
		timeout = DefaultTransferTimeout
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("remote: %s canceled: %w", label, err)
	}

	tr := &transferRun{}
	done := make(chan error, 1)

	go func() { done <- fn(tr) }()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var stopErr error

	select {
	case err := <-done:
		if err != nil {
			return &CommandError{Command: label, ExitCode: -1, Stderr: err.Error(), Err: ErrCommandFailed}
		}

		return nil
	case <-timer.C:
		stopErr = fmt.Errorf("%w after %s: %s", ErrTimeout, timeout, label)
	case <-ctx.Done():
		stopErr = fmt.Errorf("remote: %s canceled: %w", label, ctx.Err())
	}

	tr.abort()

	select {
	case <-done:
	case <-time.After(grace):
		reset()
		<-done
	}

	return stopErr
}

// Close tears down the SFTP subsystem and the connection.
func (n *Native) Close() error {
	n.mu.Lock()
	c := n.sftp
	n.sftp = nil
	n.mu.Unlock()

	var sftpErr error
	if c != nil {
		sftpErr = c.Close()
	}

	return errors.Join(sftpErr, n.client.Close())
}
