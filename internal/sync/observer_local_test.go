package sync

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	stdsync "sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockWatcher is a channel-backed FsWatcher.
type mockWatcher struct {
	mu     stdsync.Mutex
	added  []string
	events chan fsnotify.Event
	errs   chan error
	addErr error
}

func newMockWatcher() *mockWatcher {
	return &mockWatcher{
		events: make(chan fsnotify.Event, 16),
		errs:   make(chan error, 16),
	}
}

func (m *mockWatcher) Add(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.added = append(m.added, name)

	return m.addErr
}

func (m *mockWatcher) Remove(string) error           { return nil }
func (m *mockWatcher) Close() error                  { return nil }
func (m *mockWatcher) Events() <-chan fsnotify.Event { return m.events }
func (m *mockWatcher) Errors() <-chan error          { return m.errs }

func (m *mockWatcher) watched() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]string(nil), m.added...)
}

func newTestObserver(t *testing.T, root string, patterns ...string) (*LocalObserver, *mockWatcher) {
	t.Helper()

	filter, err := NewFilter(patterns)
	require.NoError(t, err)

	w := newMockWatcher()
	o := NewLocalObserver(root, filter, testLogger(t))
	o.watcherFactory = func() (FsWatcher, error) { return w, nil }

	return o, w
}

// runObserver starts Watch in the background and returns the event channel.
func runObserver(t *testing.T, o *LocalObserver) chan LocalEvent {
	t.Helper()

	ctx, cancel := context.WithCancel(t.Context())
	events := make(chan LocalEvent, 64)
	done := make(chan error, 1)

	go func() { done <- o.Watch(ctx, events) }()

	t.Cleanup(func() {
		cancel()
		assert.NoError(t, <-done)
	})

	return events
}

func nextEvent(t *testing.T, events <-chan LocalEvent) LocalEvent {
	t.Helper()

	select {
	case ev := <-events:
		return ev
	case <-time.After(5 * time.Second):
		require.FailNow(t, "timed out waiting for local event")
		return LocalEvent{}
	}
}

func writeFile(t *testing.T, p, content string) {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

func TestLocalObserver_WatchesTreeSkippingExcluded(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "src", "lib"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "node_modules", "pkg"), 0o755))

	o, w := newTestObserver(t, root, "node_modules")
	runObserver(t, o)

	require.Eventually(t, func() bool { return len(w.watched()) == 3 }, 5*time.Second, 10*time.Millisecond)
	assert.ElementsMatch(t, []string{
		root, filepath.Join(root, "src"), filepath.Join(root, "src", "lib"),
	}, w.watched())
}

func TestLocalObserver_RootWatchFailure(t *testing.T) {
	t.Parallel()

	o, w := newTestObserver(t, t.TempDir())
	w.addErr = errors.New("inotify limit")

	err := o.Watch(t.Context(), make(chan LocalEvent, 1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "inotify limit")
}

func TestLocalObserver_MissingRoot(t *testing.T) {
	t.Parallel()

	o, _ := newTestObserver(t, filepath.Join(t.TempDir(), "nope"))

	require.Error(t, o.Watch(t.Context(), make(chan LocalEvent, 1)))
}

func TestLocalObserver_TranslatesEvents(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	o, w := newTestObserver(t, root, "*.swp")
	events := runObserver(t, o)

	file := filepath.Join(root, "index.html")
	writeFile(t, file, "<html>")

	w.events <- fsnotify.Event{Name: file, Op: fsnotify.Create}
	assert.Equal(t, LocalEvent{Path: "index.html", Kind: ChangeCreated}, nextEvent(t, events))

	w.events <- fsnotify.Event{Name: file, Op: fsnotify.Write}
	assert.Equal(t, LocalEvent{Path: "index.html", Kind: ChangeModified}, nextEvent(t, events))

	// Ignored: chmod, excluded names, paths outside the root.
	w.events <- fsnotify.Event{Name: file, Op: fsnotify.Chmod}
	w.events <- fsnotify.Event{Name: filepath.Join(root, ".index.html.swp"), Op: fsnotify.Create}
	w.events <- fsnotify.Event{Name: "/elsewhere/x.txt", Op: fsnotify.Write}

	w.events <- fsnotify.Event{Name: file, Op: fsnotify.Rename}
	assert.Equal(t, LocalEvent{Path: "index.html", Kind: ChangeDeleted}, nextEvent(t, events))

	w.events <- fsnotify.Event{Name: file, Op: fsnotify.Remove}
	assert.Equal(t, LocalEvent{Path: "index.html", Kind: ChangeDeleted}, nextEvent(t, events))
}

func TestLocalObserver_CreateOfVanishedFileIsDropped(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	o, w := newTestObserver(t, root)
	events := runObserver(t, o)

	w.events <- fsnotify.Event{Name: filepath.Join(root, "ghost.txt"), Op: fsnotify.Create}
	w.events <- fsnotify.Event{Name: filepath.Join(root, "ghost.txt"), Op: fsnotify.Write}

	kept := filepath.Join(root, "real.txt")
	writeFile(t, kept, "x")
	w.events <- fsnotify.Event{Name: kept, Op: fsnotify.Create}

	assert.Equal(t, LocalEvent{Path: "real.txt", Kind: ChangeCreated}, nextEvent(t, events))
}

func TestLocalObserver_NewDirectoryIsScanned(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	o, w := newTestObserver(t, root)
	events := runObserver(t, o)

	dir := filepath.Join(root, "assets")
	writeFile(t, filepath.Join(dir, "img", "logo.svg"), "<svg/>")

	w.events <- fsnotify.Event{Name: dir, Op: fsnotify.Create}

	assert.Equal(t, LocalEvent{Path: "assets/img/logo.svg", Kind: ChangeCreated}, nextEvent(t, events))
	assert.Contains(t, w.watched(), dir)
	assert.Contains(t, w.watched(), filepath.Join(dir, "img"))
}

func TestLocalObserver_ErrorBackoff(t *testing.T) {
	t.Parallel()

	o, w := newTestObserver(t, t.TempDir())

	var (
		mu     stdsync.Mutex
		sleeps []time.Duration
	)

	o.sleepFunc = func(_ context.Context, d time.Duration) error {
		mu.Lock()
		defer mu.Unlock()

		sleeps = append(sleeps, d)

		return nil
	}

	runObserver(t, o)

	for range 7 {
		w.errs <- errors.New("queue overflow")
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()

		return len(sleeps) == 7
	}, 5*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()

	assert.Equal(t, []time.Duration{
		time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second,
		16 * time.Second, 30 * time.Second, 30 * time.Second,
	}, sleeps)
}

func TestLocalObserver_CanceledSleepStops(t *testing.T) {
	t.Parallel()

	o, w := newTestObserver(t, t.TempDir())
	o.sleepFunc = func(context.Context, time.Duration) error { return context.Canceled }

	w.errs <- errors.New("boom")

	assert.NoError(t, o.Watch(t.Context(), make(chan LocalEvent, 1)))
}

func TestLocalObserver_RealFsnotify(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	o := NewLocalObserver(root, nil, testLogger(t))
	events := runObserver(t, o)

	// Give the watcher a moment to register before writing.
	time.Sleep(100 * time.Millisecond)

	writeFile(t, filepath.Join(root, "hello.txt"), "hi")

	ev := nextEvent(t, events)
	assert.Equal(t, "hello.txt", ev.Path)
	assert.Contains(t, []ChangeKind{ChangeCreated, ChangeModified}, ev.Kind)

	require.NoError(t, os.Remove(filepath.Join(root, "hello.txt")))

	require.Eventually(t, func() bool {
		select {
		case ev := <-events:
			return ev.Path == "hello.txt" && ev.Kind == ChangeDeleted
		default:
			return false
		}
	}, 5*time.Second, 20*time.Millisecond)
}
