package sync

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"path/filepath"
	"sort"
	"strings"
	stdsync "sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/sshcp/sshcp/internal/remote"
)

const (
	testLocalRoot  = "/home/dev/site"
	testRemoteRoot = "/srv/site"
)

// baseTime is the mtime origin for files created by tests.
var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testLogger(t *testing.T) *slog.Logger {
	t.Helper()

	return slog.New(slog.NewTextHandler(&testLogWriter{t: t}, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

// testLogWriter adapts testing.T to io.Writer for slog.
type testLogWriter struct {
	t *testing.T
}

func (w *testLogWriter) Write(p []byte) (int, error) {
	w.t.Helper()
	w.t.Log(string(p))

	return len(p), nil
}

// fakeRemote is an in-memory remote host. It understands the handful of
// shell commands the engine issues and implements both remote.Executor and
// remote.Transferer. Transfers stamp the destination with a fresh mtime,
// the way scp without -p does.
type fakeRemote struct {
	mu      stdsync.Mutex
	fs      afero.Fs // remote side
	localFs afero.Fs // session's local side, for transfers
	calls   []string
	stamp   time.Time

	failPrefix map[string]error // command prefix → error returned instead of running
	uploadErr  error
	uploads    []string
	downloads  []string
}

func newFakeRemote(localFs afero.Fs) *fakeRemote {
	r := &fakeRemote{
		fs:         afero.NewMemMapFs(),
		localFs:    localFs,
		stamp:      baseTime.Add(time.Hour),
		failPrefix: make(map[string]error),
	}

	_ = r.fs.MkdirAll(testRemoteRoot, 0o755)

	return r
}

func (r *fakeRemote) nextStamp() time.Time {
	r.stamp = r.stamp.Add(1500 * time.Millisecond)
	return r.stamp
}

func (r *fakeRemote) Run(_ context.Context, command string, _ time.Duration) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls = append(r.calls, command)

	for prefix, err := range r.failPrefix {
		if strings.HasPrefix(command, prefix) {
			return "", err
		}
	}

	fields := strings.Fields(command)

	switch {
	case strings.HasPrefix(command, "mkdir -p "):
		return "", r.fs.MkdirAll(fields[2], 0o755)

	case strings.HasPrefix(command, "rm -f "):
		err := r.fs.Remove(fields[2])
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}

		return "", nil

	case strings.HasPrefix(command, "find ") && strings.Contains(command, "-maxdepth 0"):
		info, err := r.fs.Stat(fields[1])
		if err != nil || info.IsDir() {
			return remote.NotFoundMarker, nil
		}

		return fmt.Sprintf("%.6f %d", epochSeconds(info.ModTime()), info.Size()), nil

	case strings.HasPrefix(command, "find "):
		return r.listing(fields[1])
	}

	return "", fmt.Errorf("fake remote: unsupported command %q", command)
}

func (r *fakeRemote) listing(root string) (string, error) {
	if _, err := r.fs.Stat(root); err != nil {
		return "", &remote.CommandError{Command: "find", ExitCode: 1, Err: remote.ErrCommandFailed}
	}

	var lines []string

	err := afero.Walk(r.fs, root, func(p string, info fs.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return err
		}

		rel := strings.TrimPrefix(p, root+"/")
		lines = append(lines, fmt.Sprintf("%s|%.6f|%d", rel, epochSeconds(info.ModTime()), info.Size()))

		return nil
	})

	sort.Strings(lines)

	return strings.Join(lines, "\n"), err
}

func (r *fakeRemote) Upload(_ context.Context, localPath, remotePath string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.uploads = append(r.uploads, remotePath)

	if r.uploadErr != nil {
		return r.uploadErr
	}

	data, err := afero.ReadFile(r.localFs, localPath)
	if err != nil {
		return err
	}

	if _, err := r.fs.Stat(path.Dir(remotePath)); err != nil {
		return fmt.Errorf("fake remote: no parent for %s: %w", remotePath, err)
	}

	if err := afero.WriteFile(r.fs, remotePath, data, 0o644); err != nil {
		return err
	}

	ts := r.nextStamp()

	return r.fs.Chtimes(remotePath, ts, ts)
}

func (r *fakeRemote) Download(_ context.Context, remotePath, localPath string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.downloads = append(r.downloads, remotePath)

	data, err := afero.ReadFile(r.fs, remotePath)
	if err != nil {
		return err
	}

	if err := afero.WriteFile(r.localFs, localPath, data, 0o644); err != nil {
		return err
	}

	ts := r.nextStamp()

	return r.localFs.Chtimes(localPath, ts, ts)
}

// put writes a remote file with the given mtime.
func (r *fakeRemote) put(t *testing.T, rel, content string, mtime time.Time) {
	t.Helper()

	r.mu.Lock()
	defer r.mu.Unlock()

	p := remote.Join(testRemoteRoot, rel)
	require.NoError(t, r.fs.MkdirAll(path.Dir(p), 0o755))
	require.NoError(t, afero.WriteFile(r.fs, p, []byte(content), 0o644))
	require.NoError(t, r.fs.Chtimes(p, mtime, mtime))
}

// remove deletes a remote file.
func (r *fakeRemote) remove(t *testing.T, rel string) {
	t.Helper()

	r.mu.Lock()
	defer r.mu.Unlock()

	require.NoError(t, r.fs.Remove(remote.Join(testRemoteRoot, rel)))
}

// content returns a remote file's content, or "" with ok=false.
func (r *fakeRemote) content(rel string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := afero.ReadFile(r.fs, remote.Join(testRemoteRoot, rel))
	if err != nil {
		return "", false
	}

	return string(data), true
}

// countCalls returns how many commands started with prefix.
func (r *fakeRemote) countCalls(prefix string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0

	for _, c := range r.calls {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}

	return n
}

func (r *fakeRemote) failCommands(prefix string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.failPrefix[prefix] = err
}

func (r *fakeRemote) clearFailures() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.failPrefix = make(map[string]error)
}

func (r *fakeRemote) uploadCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.uploads)
}

func (r *fakeRemote) downloadCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.downloads)
}

// writeLocal writes a local file under testLocalRoot with the given mtime.
func writeLocal(t *testing.T, fsys afero.Fs, rel, content string, mtime time.Time) {
	t.Helper()

	p := filepath.Join(testLocalRoot, filepath.FromSlash(rel))
	require.NoError(t, fsys.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, afero.WriteFile(fsys, p, []byte(content), 0o644))
	require.NoError(t, fsys.Chtimes(p, mtime, mtime))
}

func readLocal(fsys afero.Fs, rel string) (string, bool) {
	data, err := afero.ReadFile(fsys, filepath.Join(testLocalRoot, filepath.FromSlash(rel)))
	if err != nil {
		return "", false
	}

	return string(data), true
}

// recordingSink collects session events.
type recordingSink struct {
	mu     stdsync.Mutex
	events []Event
}

func (s *recordingSink) SyncEvent(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = append(s.events, ev)
}

func (s *recordingSink) ops() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0, len(s.events))
	for _, ev := range s.events {
		out = append(out, fmt.Sprintf("%s %s %s", ev.Direction, ev.Op, ev.Path))
	}

	return out
}

// chanObserver is an EventSource fed by the test.
type chanObserver struct {
	ch chan LocalEvent
}

func newChanObserver() *chanObserver {
	return &chanObserver{ch: make(chan LocalEvent, 16)}
}

func (o *chanObserver) Watch(ctx context.Context, events chan<- LocalEvent) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-o.ch:
			select {
			case events <- ev:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

// stubPolicy returns a fixed action and remembers what it was asked.
type stubPolicy struct {
	mu      stdsync.Mutex
	action  Action
	records []ConflictRecord
}

func (p *stubPolicy) Resolve(_ context.Context, rec ConflictRecord) Action {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.records = append(p.records, rec)

	return p.action
}

func (p *stubPolicy) Name() string { return "stub" }

func (p *stubPolicy) asked() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.records)
}
