package sync

import (
	"context"
	"log/slog"
	"strings"
)

// syncLocalChange pushes one drained local change to the remote side. The
// caller holds the path in flight.
func (s *Session) syncLocalChange(ctx context.Context, pc PendingChange) {
	local, err := s.executor.LocalMetadata(pc.Path)
	if err != nil {
		s.logger.Warn("local stat failed", slog.String("path", pc.Path), slog.String("error", err.Error()))
		return
	}

	if pc.Kind == ChangeDeleted {
		switch {
		case local.Exists:
			// Deleted and recreated within one debounce window.
			s.pushLocal(ctx, local, ChangeModified)
		case s.state.Known(pc.Path):
			s.pushDeletion(ctx, pc.Path)
		default:
			s.pushDirectoryDeletion(ctx, pc.Path)
		}

		return
	}

	if !local.Exists {
		return
	}

	// A late notification for a write this session made itself.
	if bl, ok := s.state.Local(pc.Path); ok && bl.sameVersion(local) {
		s.logger.Debug("local file unchanged since last sync", slog.String("path", pc.Path))
		return
	}

	s.pushLocal(ctx, local, pc.Kind)
}

// pushLocal uploads a local file unless the remote copy also changed since
// the last sync, in which case the policy decides.
func (s *Session) pushLocal(ctx context.Context, local FileMetadata, kind ChangeKind) {
	path := local.Path

	rmt, err := s.executor.RemoteMetadata(ctx, path)
	if err != nil {
		s.logger.Warn("remote probe failed", slog.String("path", path), slog.String("error", err.Error()))
		return
	}

	if rmt.Exists && s.detector.Classify(path, local, rmt) == Conflict {
		switch s.resolve(ctx, path, local, rmt) {
		case ActionUseRemote:
			s.apply(ctx, path, DirectionDownload, ChangeModified)
			return
		case ActionSkip:
			s.skipped[path] = rmt
			s.emitSkipped(DirectionUpload, path)

			return
		case ActionAbort:
			return
		case ActionUseLocal:
		}
	}

	s.apply(ctx, path, DirectionUpload, kind)
}

// pushDeletion deletes the remote copy of a locally deleted file. If the
// remote copy changed since the last sync the policy decides whether the
// deletion or the remote edit wins.
func (s *Session) pushDeletion(ctx context.Context, path string) {
	rmt, err := s.executor.RemoteMetadata(ctx, path)
	if err != nil {
		s.logger.Warn("remote probe failed", slog.String("path", path), slog.String("error", err.Error()))
		return
	}

	if !rmt.Exists {
		s.state.Forget(path)
		return
	}

	if s.detector.Classify(path, Missing(path), rmt) == Conflict {
		switch s.resolve(ctx, path, Missing(path), rmt) {
		case ActionUseRemote:
			s.apply(ctx, path, DirectionDownload, ChangeCreated)
			return
		case ActionSkip:
			s.skipped[path] = rmt
			s.emitSkipped(DirectionUpload, path)

			return
		case ActionAbort:
			return
		case ActionUseLocal:
		}
	}

	s.apply(ctx, path, DirectionUpload, ChangeDeleted)
}

// pushDirectoryDeletion handles a deletion event for a path the baselines
// never held as a file. When a directory is moved out of the tree only the
// directory itself is reported, so every known file below it is deleted.
func (s *Session) pushDirectoryDeletion(ctx context.Context, dir string) {
	prefix := dir + "/"

	for _, p := range s.state.Paths() {
		if !strings.HasPrefix(p, prefix) {
			continue
		}

		if s.stopRequested() || ctx.Err() != nil {
			return
		}

		local, err := s.executor.LocalMetadata(p)
		if err != nil || local.Exists {
			continue
		}

		s.withInFlight(p, func() { s.pushDeletion(ctx, p) })
	}
}

// pullRemoteChange downloads a new or changed remote file unless the local
// copy also changed since the last sync, in which case the policy decides.
func (s *Session) pullRemoteChange(ctx context.Context, rmt FileMetadata) {
	path := rmt.Path

	if sk, ok := s.skipped[path]; ok {
		if sk.sameVersion(rmt) {
			return
		}

		delete(s.skipped, path)
	}

	local, err := s.executor.LocalMetadata(path)
	if err != nil {
		s.logger.Warn("local stat failed", slog.String("path", path), slog.String("error", err.Error()))
		return
	}

	if local.Exists && s.detector.Classify(path, local, rmt) == Conflict {
		switch s.resolve(ctx, path, local, rmt) {
		case ActionUseLocal:
			s.apply(ctx, path, DirectionUpload, ChangeModified)
			return
		case ActionSkip:
			s.skipped[path] = rmt
			s.emitSkipped(DirectionDownload, path)

			return
		case ActionAbort:
			return
		case ActionUseRemote:
		}
	}

	kind := ChangeModified
	if !local.Exists {
		kind = ChangeCreated
	}

	s.apply(ctx, path, DirectionDownload, kind)
}

// pullRemoteDeletion removes the local copy of a file deleted remotely. A
// local edit made since the last sync is a conflict.
func (s *Session) pullRemoteDeletion(ctx context.Context, path string) {
	delete(s.skipped, path)

	local, err := s.executor.LocalMetadata(path)
	if err != nil {
		s.logger.Warn("local stat failed", slog.String("path", path), slog.String("error", err.Error()))
		return
	}

	if !local.Exists {
		s.state.Forget(path)
		return
	}

	if s.detector.Classify(path, local, Missing(path)) == Conflict {
		switch s.resolve(ctx, path, local, Missing(path)) {
		case ActionUseLocal:
			s.apply(ctx, path, DirectionUpload, ChangeCreated)
			return
		case ActionSkip:
			// Drop the remote side so the deletion is not reported again.
			s.state.RecordRemote(Missing(path))
			s.emitSkipped(DirectionDownload, path)

			return
		case ActionAbort:
			return
		case ActionUseRemote:
		}
	}

	s.apply(ctx, path, DirectionDownload, ChangeDeleted)
}
