package sync

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watch error backoff: a sustained error stream (kernel queue overflow)
// must not spin the loop.
const (
	watchErrInitBackoff = 1 * time.Second
	watchErrMaxBackoff  = 30 * time.Second
	watchErrBackoffMult = 2
)

// LocalEvent is one file-level change reported by the local observer.
type LocalEvent struct {
	Path string // normalized root-relative path
	Kind ChangeKind
}

// EventSource produces local change events until ctx is canceled.
type EventSource interface {
	Watch(ctx context.Context, events chan<- LocalEvent) error
}

// FsWatcher is the subset of fsnotify.Watcher the observer needs. Tests
// substitute a channel-backed fake.
type FsWatcher interface {
	Add(name string) error
	Remove(name string) error
	Close() error
	Events() <-chan fsnotify.Event
	Errors() <-chan error
}

// fsnotifyWrapper adapts *fsnotify.Watcher, whose channels are fields, to
// FsWatcher.
type fsnotifyWrapper struct {
	w *fsnotify.Watcher
}

func (f *fsnotifyWrapper) Add(name string) error         { return f.w.Add(name) }
func (f *fsnotifyWrapper) Remove(name string) error      { return f.w.Remove(name) }
func (f *fsnotifyWrapper) Close() error                  { return f.w.Close() }
func (f *fsnotifyWrapper) Events() <-chan fsnotify.Event { return f.w.Events }
func (f *fsnotifyWrapper) Errors() <-chan error          { return f.w.Errors }

func newFsnotifyWatcher() (FsWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &fsnotifyWrapper{w: w}, nil
}

// LocalObserver turns fsnotify events under a root into file-level
// LocalEvents. fsnotify is not recursive, so every directory gets its own
// watch, both at start and whenever a directory appears. It does not filter
// out the session's own writes; the session's in-flight set does that.
type LocalObserver struct {
	root   string
	filter *Filter
	logger *slog.Logger

	watcherFactory func() (FsWatcher, error)
	sleepFunc      func(ctx context.Context, d time.Duration) error
}

// NewLocalObserver creates an observer for root.
func NewLocalObserver(root string, filter *Filter, logger *slog.Logger) *LocalObserver {
	return &LocalObserver{
		root:           root,
		filter:         filter,
		logger:         logger,
		watcherFactory: newFsnotifyWatcher,
		sleepFunc:      timeSleep,
	}
}

// Watch registers watches on the whole tree, then forwards events until ctx
// is canceled. It returns nil on cancellation; only setup failures are
// errors. The watcher is closed on return.
func (o *LocalObserver) Watch(ctx context.Context, events chan<- LocalEvent) error {
	watcher, err := o.watcherFactory()
	if err != nil {
		return fmt.Errorf("sync: creating filesystem watcher: %w", err)
	}
	defer watcher.Close()

	if err := o.addWatchesRecursive(watcher, o.root); err != nil {
		return err
	}

	o.logger.Info("local observer started", slog.String("root", o.root))

	return o.watchLoop(ctx, watcher, events)
}

// addWatchesRecursive adds a watch for dir and every directory below it
// that is not excluded.
func (o *LocalObserver) addWatchesRecursive(watcher FsWatcher, dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if p == dir {
				return fmt.Errorf("sync: walking %s: %w", dir, walkErr)
			}

			o.logger.Warn("watch: walk error", slog.String("path", p), slog.String("error", walkErr.Error()))

			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}

			return nil
		}

		if !d.IsDir() {
			return nil
		}

		if p != o.root {
			if rel, err := relativePath(o.root, p); err == nil && o.filter.Excluded(rel) {
				return filepath.SkipDir
			}
		}

		if err := watcher.Add(p); err != nil {
			if p == o.root {
				return fmt.Errorf("sync: watching %s: %w", p, err)
			}

			o.logger.Warn("watch: failed to add directory",
				slog.String("path", p), slog.String("error", err.Error()))
		}

		return nil
	})
}

// trySend delivers ev unless ctx is canceled first.
func (o *LocalObserver) trySend(ctx context.Context, events chan<- LocalEvent, ev LocalEvent) {
	select {
	case events <- ev:
	case <-ctx.Done():
	}
}

// timeSleep waits for d or until ctx is canceled.
func timeSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
