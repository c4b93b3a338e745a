package sync

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func meta(path string, mtime float64, size int64) FileMetadata {
	return FileMetadata{Path: path, ModTime: mtime, Size: size, Exists: true}
}

func TestStateStore_SeedCopiesInput(t *testing.T) {
	t.Parallel()

	local := map[string]FileMetadata{"a.txt": meta("a.txt", 100, 1)}
	rmt := map[string]FileMetadata{"a.txt": meta("a.txt", 101, 1)}

	s := NewStateStore()
	s.Seed(local, rmt)

	// Mutating the caller's maps must not leak into the store.
	delete(local, "a.txt")
	rmt["b.txt"] = meta("b.txt", 1, 1)

	got, ok := s.Local("a.txt")
	require.True(t, ok)
	assert.InDelta(t, 100, got.ModTime, 0)

	_, ok = s.Remote("b.txt")
	assert.False(t, ok)

	l, r := s.Len()
	assert.Equal(t, 1, l)
	assert.Equal(t, 1, r)
}

func TestStateStore_RecordDropsMissingSides(t *testing.T) {
	t.Parallel()

	s := NewStateStore()
	s.Record(meta("a.txt", 1, 1), meta("a.txt", 2, 1))
	require.True(t, s.Known("a.txt"))

	s.Record(meta("a.txt", 3, 1), Missing("a.txt"))

	_, ok := s.Remote("a.txt")
	assert.False(t, ok)

	l, ok := s.Local("a.txt")
	require.True(t, ok)
	assert.InDelta(t, 3, l.ModTime, 0)
}

func TestStateStore_ForgetRemovesBothSides(t *testing.T) {
	t.Parallel()

	s := NewStateStore()
	s.Record(meta("a.txt", 1, 1), meta("a.txt", 2, 1))
	s.Forget("a.txt")

	assert.False(t, s.Known("a.txt"))
}

func TestStateStore_RemoteSnapshotIsACopy(t *testing.T) {
	t.Parallel()

	s := NewStateStore()
	s.RecordRemote(meta("a.txt", 2, 1))

	snap := s.RemoteSnapshot()
	delete(snap, "a.txt")

	_, ok := s.Remote("a.txt")
	assert.True(t, ok)
}

func TestStateStore_ReplaceRemoteKeepsLocal(t *testing.T) {
	t.Parallel()

	s := NewStateStore()
	s.Seed(map[string]FileMetadata{"a.txt": meta("a.txt", 1, 1)}, nil)
	s.ReplaceRemote(map[string]FileMetadata{"b.txt": meta("b.txt", 2, 2)})

	_, ok := s.Local("a.txt")
	assert.True(t, ok)

	_, ok = s.Remote("b.txt")
	assert.True(t, ok)
}

func TestStateStore_PathsSortedUnion(t *testing.T) {
	t.Parallel()

	s := NewStateStore()
	s.Seed(
		map[string]FileMetadata{"b.txt": meta("b.txt", 1, 1), "a.txt": meta("a.txt", 1, 1)},
		map[string]FileMetadata{"c/d.txt": meta("c/d.txt", 1, 1), "a.txt": meta("a.txt", 1, 1)},
	)

	assert.Equal(t, []string{"a.txt", "b.txt", "c/d.txt"}, s.Paths())
}
