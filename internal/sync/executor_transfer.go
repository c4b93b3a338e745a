package sync

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"path/filepath"

	"github.com/sshcp/sshcp/internal/remote"
)

// upload copies the local file to the remote root, creating parent
// directories first, then records both sides as queried after the copy.
func (e *Executor) upload(ctx context.Context, rel string, kind ChangeKind) error {
	remoteFile := e.remotePath(rel)

	if parent := path.Dir(remoteFile); parent != e.remoteRoot {
		if _, err := e.remote.Run(ctx, remote.MkdirCommand(parent), e.timeout); err != nil {
			return fmt.Errorf("sync: creating remote directory for %s: %w", rel, err)
		}
	}

	if err := e.transfer.Upload(ctx, e.localPath(rel), remoteFile); err != nil {
		return fmt.Errorf("sync: uploading %s: %w", rel, err)
	}

	if err := e.recordAfterTransfer(ctx, rel); err != nil {
		return err
	}

	e.logger.Debug("uploaded", slog.String("path", rel))
	e.emit(DirectionUpload, transferOp(kind), rel)

	return nil
}

// download copies the remote file over the local one, creating local
// parent directories first.
func (e *Executor) download(ctx context.Context, rel string, kind ChangeKind) error {
	localFile := e.localPath(rel)

	if err := e.fs.MkdirAll(filepath.Dir(localFile), dirPermissions); err != nil {
		return fmt.Errorf("sync: creating local directory for %s: %w", rel, err)
	}

	if err := e.transfer.Download(ctx, e.remotePath(rel), localFile); err != nil {
		return fmt.Errorf("sync: downloading %s: %w", rel, err)
	}

	if err := e.recordAfterTransfer(ctx, rel); err != nil {
		return err
	}

	e.logger.Debug("downloaded", slog.String("path", rel))
	e.emit(DirectionDownload, transferOp(kind), rel)

	return nil
}

// recordAfterTransfer re-queries both sides and stores the result. The
// destination's timestamps are whatever the copy produced, not the source's,
// so only a fresh query gives a baseline the next comparison can trust. If
// the remote probe fails the local side is still recorded; the next poll
// will fill in the remote side.
func (e *Executor) recordAfterTransfer(ctx context.Context, rel string) error {
	local, err := e.LocalMetadata(rel)
	if err != nil {
		return err
	}

	rmt, err := e.RemoteMetadata(ctx, rel)
	if err != nil {
		e.logger.Warn("post-transfer remote probe failed, recording local side only",
			slog.String("path", rel),
			slog.String("error", err.Error()),
		)
		e.state.RecordLocal(local)

		return nil
	}

	e.state.Record(local, rmt)

	return nil
}
