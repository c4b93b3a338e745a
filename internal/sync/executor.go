package sync

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/spf13/afero"

	"github.com/sshcp/sshcp/internal/remote"
)

// dirPermissions is the Unix permission mode for directories created locally.
const dirPermissions = 0o755

// ExecutorConfig wires an Executor to both sides of a pairing.
type ExecutorConfig struct {
	Fs             afero.Fs // local filesystem; afero.NewOsFs() outside tests
	LocalRoot      string   // absolute local directory
	RemoteRoot     string   // absolute directory on the remote host
	Remote         remote.Executor
	Transfer       remote.Transferer
	CommandTimeout time.Duration
	Events         EventSink
	Logger         *slog.Logger
}

// Executor performs one upload, download or deletion for a path and, on
// success, writes freshly queried metadata into the State Store. A failed
// operation leaves the baselines untouched; the discrepancy is rediscovered
// by the next local event or remote poll.
type Executor struct {
	fs         afero.Fs
	localRoot  string
	remoteRoot string
	remote     remote.Executor
	transfer   remote.Transferer
	timeout    time.Duration
	state      *StateStore
	events     EventSink
	logger     *slog.Logger
}

// NewExecutor creates an Executor that records into state.
func NewExecutor(cfg ExecutorConfig, state *StateStore) *Executor {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	if cfg.Events == nil {
		cfg.Events = discardEvents{}
	}

	if cfg.Fs == nil {
		cfg.Fs = afero.NewOsFs()
	}

	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = remote.DefaultCommandTimeout
	}

	return &Executor{
		fs:         cfg.Fs,
		localRoot:  cfg.LocalRoot,
		remoteRoot: cfg.RemoteRoot,
		remote:     cfg.Remote,
		transfer:   cfg.Transfer,
		timeout:    cfg.CommandTimeout,
		state:      state,
		events:     cfg.Events,
		logger:     cfg.Logger,
	}
}

// Apply carries out one change for path in the given direction. Deleted
// removes the destination copy; Created and Modified transfer the source
// copy over the destination.
func (e *Executor) Apply(ctx context.Context, path string, dir Direction, kind ChangeKind) error {
	if kind == ChangeDeleted {
		if dir == DirectionUpload {
			return e.deleteRemote(ctx, path)
		}

		return e.deleteLocal(path)
	}

	if dir == DirectionUpload {
		return e.upload(ctx, path, kind)
	}

	return e.download(ctx, path, kind)
}

// LocalMetadata stats path under the local root. A missing path, or one
// that is not a regular file, is reported as Missing.
func (e *Executor) LocalMetadata(path string) (FileMetadata, error) {
	info, err := e.fs.Stat(e.localPath(path))
	if errors.Is(err, fs.ErrNotExist) {
		return Missing(path), nil
	}

	if err != nil {
		return FileMetadata{}, fmt.Errorf("sync: stat %s: %w", path, err)
	}

	if !info.Mode().IsRegular() {
		return Missing(path), nil
	}

	return FileMetadata{
		Path:    path,
		ModTime: epochSeconds(info.ModTime()),
		Size:    info.Size(),
		Exists:  true,
	}, nil
}

// RemoteMetadata probes path under the remote root with one command.
func (e *Executor) RemoteMetadata(ctx context.Context, path string) (FileMetadata, error) {
	out, err := e.remote.Run(ctx, remote.StatCommand(e.remotePath(path)), e.timeout)
	if err != nil {
		return FileMetadata{}, fmt.Errorf("sync: probing remote %s: %w", path, err)
	}

	mtime, size, exists, err := remote.ParseStat(out)
	if err != nil {
		return FileMetadata{}, fmt.Errorf("sync: probing remote %s: %w", path, err)
	}

	if !exists {
		return Missing(path), nil
	}

	return FileMetadata{Path: path, ModTime: mtime, Size: size, Exists: true}, nil
}

// EnsureRemoteRoot creates the remote root if it does not exist.
func (e *Executor) EnsureRemoteRoot(ctx context.Context) error {
	if _, err := e.remote.Run(ctx, remote.MkdirCommand(e.remoteRoot), e.timeout); err != nil {
		return fmt.Errorf("sync: creating remote root %s: %w", e.remoteRoot, err)
	}

	return nil
}

func (e *Executor) localPath(path string) string {
	return filepath.Join(e.localRoot, filepath.FromSlash(path))
}

func (e *Executor) remotePath(path string) string {
	return remote.Join(e.remoteRoot, path)
}

func (e *Executor) emit(dir Direction, op EventOp, path string) {
	e.events.SyncEvent(Event{Time: time.Now(), Direction: dir, Op: op, Path: path})
}

// transferOp labels a completed transfer for the event log.
func transferOp(kind ChangeKind) EventOp {
	if kind == ChangeCreated {
		return OpAdded
	}

	return OpUpdated
}
