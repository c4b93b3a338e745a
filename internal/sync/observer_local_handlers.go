package sync

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// watchLoop is the main select loop for Watch(). It processes fsnotify
// events, watcher errors and context cancellation.
func (o *LocalObserver) watchLoop(ctx context.Context, watcher FsWatcher, events chan<- LocalEvent) error {
	errBackoff := watchErrInitBackoff

	for {
		select {
		case <-ctx.Done():
			return nil

		case fsEvent, ok := <-watcher.Events():
			if !ok {
				return nil
			}

			o.handleFsEvent(ctx, fsEvent, watcher, events)

			errBackoff = watchErrInitBackoff

		case watchErr, ok := <-watcher.Errors():
			if !ok {
				return nil
			}

			o.logger.Warn("filesystem watcher error",
				slog.String("error", watchErr.Error()),
				slog.Duration("backoff", errBackoff),
			)

			if sleepErr := o.sleepFunc(ctx, errBackoff); sleepErr != nil {
				return nil
			}

			errBackoff *= watchErrBackoffMult
			if errBackoff > watchErrMaxBackoff {
				errBackoff = watchErrMaxBackoff
			}
		}
	}
}

// handleFsEvent maps one fsnotify event onto zero or more LocalEvents.
func (o *LocalObserver) handleFsEvent(
	ctx context.Context, fsEvent fsnotify.Event, watcher FsWatcher, events chan<- LocalEvent,
) {
	// Mode changes are not synced.
	if fsEvent.Has(fsnotify.Chmod) && !fsEvent.Has(fsnotify.Create) && !fsEvent.Has(fsnotify.Write) {
		return
	}

	rel, err := relativePath(o.root, fsEvent.Name)
	if err != nil {
		o.logger.Debug("watch: dropping event", slog.String("path", fsEvent.Name), slog.String("error", err.Error()))
		return
	}

	if o.filter.Excluded(rel) {
		return
	}

	switch {
	case fsEvent.Has(fsnotify.Create):
		o.handleCreate(ctx, fsEvent.Name, rel, watcher, events)

	case fsEvent.Has(fsnotify.Write):
		o.handleWrite(ctx, fsEvent.Name, rel, events)

	case fsEvent.Has(fsnotify.Remove) || fsEvent.Has(fsnotify.Rename):
		// A rename reports the old name only; the new name arrives as Create.
		o.trySend(ctx, events, LocalEvent{Path: rel, Kind: ChangeDeleted})
	}
}

// handleCreate emits Created for a new file. A new directory gets a watch
// and a scan for files that landed before the watch was registered.
func (o *LocalObserver) handleCreate(
	ctx context.Context, fsPath, rel string, watcher FsWatcher, events chan<- LocalEvent,
) {
	info, err := os.Lstat(fsPath)
	if err != nil {
		// Removed again before we looked.
		o.logger.Debug("stat failed for created path",
			slog.String("path", rel), slog.String("error", err.Error()))

		return
	}

	if info.IsDir() {
		if addErr := watcher.Add(fsPath); addErr != nil {
			o.logger.Warn("failed to add watch on new directory",
				slog.String("path", rel), slog.String("error", addErr.Error()))
		}

		o.scanNewDirectory(ctx, fsPath, watcher, events)

		return
	}

	if !info.Mode().IsRegular() {
		return
	}

	o.trySend(ctx, events, LocalEvent{Path: rel, Kind: ChangeCreated})
}

// scanNewDirectory emits Created for every file already inside a newly
// created directory, recursing into subdirectories and watching them.
// Duplicates of events fsnotify also delivers are coalesced by the queue.
func (o *LocalObserver) scanNewDirectory(
	ctx context.Context, dirPath string, watcher FsWatcher, events chan<- LocalEvent,
) {
	entries, err := os.ReadDir(dirPath)
	if err != nil {
		o.logger.Debug("scan new directory failed",
			slog.String("path", dirPath), slog.String("error", err.Error()))

		return
	}

	for _, entry := range entries {
		if ctx.Err() != nil {
			return
		}

		entryPath := filepath.Join(dirPath, entry.Name())

		rel, relErr := relativePath(o.root, entryPath)
		if relErr != nil || o.filter.Excluded(rel) {
			continue
		}

		if entry.IsDir() {
			if addErr := watcher.Add(entryPath); addErr != nil {
				o.logger.Warn("failed to add watch on nested directory",
					slog.String("path", rel), slog.String("error", addErr.Error()))
			}

			o.scanNewDirectory(ctx, entryPath, watcher, events)

			continue
		}

		if entry.Type().IsRegular() {
			o.trySend(ctx, events, LocalEvent{Path: rel, Kind: ChangeCreated})
		}
	}
}

// handleWrite emits Modified for a regular file. Directory writes are noise.
func (o *LocalObserver) handleWrite(ctx context.Context, fsPath, rel string, events chan<- LocalEvent) {
	info, err := os.Stat(fsPath)
	if errors.Is(err, os.ErrNotExist) {
		return
	}

	if err != nil {
		o.logger.Debug("stat failed for modified path",
			slog.String("path", rel), slog.String("error", err.Error()))

		return
	}

	if !info.Mode().IsRegular() {
		return
	}

	o.trySend(ctx, events, LocalEvent{Path: rel, Kind: ChangeModified})
}
