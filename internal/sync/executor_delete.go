package sync

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/sshcp/sshcp/internal/remote"
)

// deleteRemote removes the remote copy with rm -f. Success forgets the path
// on both sides.
func (e *Executor) deleteRemote(ctx context.Context, rel string) error {
	if _, err := e.remote.Run(ctx, remote.RemoveCommand(e.remotePath(rel)), e.timeout); err != nil {
		return fmt.Errorf("sync: deleting remote %s: %w", rel, err)
	}

	e.state.Forget(rel)
	e.logger.Debug("deleted remote file", slog.String("path", rel))
	e.emit(DirectionUpload, OpDeleted, rel)

	return nil
}

// deleteLocal removes the local copy. A file that is already gone counts as
// deleted.
func (e *Executor) deleteLocal(rel string) error {
	err := e.fs.Remove(e.localPath(rel))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("sync: deleting local %s: %w", rel, err)
	}

	e.state.Forget(rel)

	if err == nil {
		e.logger.Debug("deleted local file", slog.String("path", rel))
		e.emit(DirectionDownload, OpDeleted, rel)
	}

	return nil
}
