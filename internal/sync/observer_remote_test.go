package sync

import (
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sshcp/sshcp/internal/remote"
)

func TestRemotePoller_Snapshot(t *testing.T) {
	t.Parallel()

	rmt := newFakeRemote(afero.NewMemMapFs())
	rmt.put(t, "index.html", "<html>", baseTime)
	rmt.put(t, "css/main.css", "body{}", baseTime.Add(500*time.Millisecond))
	rmt.put(t, "cache/blob.bin", "zzz", baseTime)

	filter, err := NewFilter([]string{"cache"})
	require.NoError(t, err)

	p := NewRemotePoller(rmt, testRemoteRoot, filter, 0, testLogger(t))

	snap, err := p.Snapshot(t.Context())
	require.NoError(t, err)
	require.Len(t, snap, 2)

	css := snap["css/main.css"]
	assert.True(t, css.Exists)
	assert.Equal(t, int64(6), css.Size)
	assert.InDelta(t, epochSeconds(baseTime)+0.5, css.ModTime, 1e-6)
	assert.Equal(t, 1, rmt.countCalls("find /srv/site -type f"))
}

func TestRemotePoller_SnapshotFailure(t *testing.T) {
	t.Parallel()

	rmt := newFakeRemote(afero.NewMemMapFs())
	rmt.failCommands("find", remote.ErrTimeout)

	p := NewRemotePoller(rmt, testRemoteRoot, nil, time.Second, testLogger(t))

	snap, err := p.Snapshot(t.Context())
	require.Error(t, err)
	assert.Nil(t, snap)
	assert.ErrorIs(t, err, ErrSnapshotFailed)
	assert.ErrorIs(t, err, remote.ErrTimeout)
}

func TestDiffRemote(t *testing.T) {
	t.Parallel()

	prev := map[string]FileMetadata{
		"same.txt":    meta("same.txt", 100, 10),
		"jitter.txt":  meta("jitter.txt", 100, 10),
		"touched.txt": meta("touched.txt", 100, 10),
		"grown.txt":   meta("grown.txt", 100, 10),
		"gone.txt":    meta("gone.txt", 100, 10),
		"also.txt":    meta("also.txt", 100, 10),
	}
	cur := map[string]FileMetadata{
		"same.txt":    meta("same.txt", 100, 10),
		"jitter.txt":  meta("jitter.txt", 100.9, 10),
		"touched.txt": meta("touched.txt", 101, 10),
		"grown.txt":   meta("grown.txt", 100.2, 11),
		"new.txt":     meta("new.txt", 5, 1),
	}

	d := DiffRemote(prev, cur)

	var changed []string
	for _, m := range d.Changed {
		changed = append(changed, m.Path)
	}

	assert.Equal(t, []string{"grown.txt", "new.txt", "touched.txt"}, changed)
	assert.Equal(t, []string{"also.txt", "gone.txt"}, d.Deleted)
	assert.False(t, d.Empty())

	assert.True(t, DiffRemote(prev, prev).Empty())
}
