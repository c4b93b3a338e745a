package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sshcp/sshcp/internal/sync"
)

func TestResolveWatchOptions_ConfigDefaults(t *testing.T) {
	cc := testCLIContext(t, `
[watch]
poll_interval = "7s"
debounce = "300ms"
conflict_strategy = "newer"
`)
	dir := t.TempDir()

	opts, err := resolveWatchOptions(newWatchCmd(), cc, []string{dir, "/srv/site"})
	require.NoError(t, err)

	assert.Equal(t, dir, opts.localRoot)
	assert.Equal(t, "/srv/site", opts.remoteRoot)
	assert.Equal(t, 7*time.Second, opts.interval)
	assert.Equal(t, 300*time.Millisecond, opts.debounce)
	assert.Equal(t, "newer", opts.strategy)
}

func TestResolveWatchOptions_FlagsWin(t *testing.T) {
	cc := testCLIContext(t, `
[bookmarks]
site = "/srv/site"
`)

	cmd := newWatchCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--interval", "2s", "--debounce", "50ms", "--on-conflict", "skip"}))

	opts, err := resolveWatchOptions(cmd, cc, []string{t.TempDir(), "@site/public"})
	require.NoError(t, err)

	assert.Equal(t, "/srv/site/public", opts.remoteRoot)
	assert.Equal(t, 2*time.Second, opts.interval)
	assert.Equal(t, 50*time.Millisecond, opts.debounce)
	assert.Equal(t, "skip", opts.strategy)
}

func TestResolveWatchOptions_Errors(t *testing.T) {
	cc := testCLIContext(t, "")

	file := filepath.Join(t.TempDir(), "plain.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))

	_, err := resolveWatchOptions(newWatchCmd(), cc, []string{file, "/srv"})
	require.ErrorContains(t, err, "not a directory")

	_, err = resolveWatchOptions(newWatchCmd(), cc, []string{t.TempDir(), "@nope"})
	require.ErrorContains(t, err, "unknown bookmark")

	cmd := newWatchCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--interval", "200ms"}))

	_, err = resolveWatchOptions(cmd, cc, []string{t.TempDir(), "/srv"})
	require.ErrorContains(t, err, "at least 1s")
}

func TestResolveWatchOptions_MissingRootAllowed(t *testing.T) {
	cc := testCLIContext(t, "")
	missing := filepath.Join(t.TempDir(), "not-yet")

	opts, err := resolveWatchOptions(newWatchCmd(), cc, []string{missing, "/srv"})
	require.NoError(t, err)
	assert.Equal(t, missing, opts.localRoot)
}

func TestConflictPolicy(t *testing.T) {
	cc := testCLIContext(t, "")

	_, err := conflictPolicy(cc, "ask", false)
	require.ErrorContains(t, err, "interactive terminal")

	_, err = conflictPolicy(cc, " ASK ", false)
	require.Error(t, err)

	p, err := conflictPolicy(cc, "ask", true)
	require.NoError(t, err)
	assert.Equal(t, sync.StrategyAsk, p.Name())

	p, err = conflictPolicy(cc, "local", false)
	require.NoError(t, err)
	assert.Equal(t, sync.StrategyLocal, p.Name())

	_, err = conflictPolicy(cc, "merge", false)
	require.Error(t, err)
}

func TestFormatEvent(t *testing.T) {
	at := time.Date(2026, 3, 1, 14, 2, 11, 0, time.Local)

	tests := []struct {
		ev   sync.Event
		want []string
	}{
		{sync.Event{Time: at, Direction: sync.DirectionUpload, Op: sync.OpAdded, Path: "css/site.css"},
			[]string{"14:02:11", "→ Added:", "css/site.css"}},
		{sync.Event{Time: at, Direction: sync.DirectionDownload, Op: sync.OpUpdated, Path: "index.html"},
			[]string{"← Updated:", "index.html"}},
		{sync.Event{Time: at, Direction: sync.DirectionUpload, Op: sync.OpDeleted, Path: "old.txt"},
			[]string{"→ Deleted:", "old.txt"}},
		{sync.Event{Time: at, Op: sync.OpSkipped, Path: "a.txt", Detail: "conflict"},
			[]string{"⚠ Skipped:", "a.txt", "(conflict)"}},
	}

	for _, tt := range tests {
		line := formatEvent(tt.ev)
		for _, w := range tt.want {
			assert.Contains(t, line, w)
		}
	}
}

func TestEventPrinter_OneLinePerEvent(t *testing.T) {
	var buf bytes.Buffer
	p := newEventPrinter(&buf)

	p.SyncEvent(sync.Event{Time: time.Now(), Op: sync.OpAdded, Path: "a"})
	p.SyncEvent(sync.Event{Time: time.Now(), Op: sync.OpAdded, Path: "b"})

	assert.Equal(t, 2, bytes.Count(buf.Bytes(), []byte("\n")))
}

func TestWatchBanner(t *testing.T) {
	banner := watchBanner(watchOptions{localRoot: "/home/dev/site", remoteRoot: "/srv/site", interval: 5 * time.Second},
		"prod", "newer")

	assert.Contains(t, banner, "/home/dev/site")
	assert.Contains(t, banner, "prod:/srv/site")
	assert.Contains(t, banner, "5s")
	assert.Contains(t, banner, "newer")
}
