package sync

import (
	"go/parser"
	"go/token"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileMetadata_Time(t *testing.T) {
	t.Parallel()

	ts := baseTime.Add(250 * time.Millisecond)
	m := FileMetadata{Path: "a", ModTime: epochSeconds(ts), Exists: true}

	assert.WithinDuration(t, ts, m.Time(), time.Microsecond)
}

func TestFileMetadata_SameVersion(t *testing.T) {
	t.Parallel()

	a := meta("a", 10, 5)

	assert.True(t, a.sameVersion(meta("a", 10, 5)))
	assert.False(t, a.sameVersion(meta("a", 10, 6)))
	assert.False(t, a.sameVersion(meta("a", 11, 5)))
	assert.False(t, a.sameVersion(Missing("a")))
	assert.True(t, Missing("a").sameVersion(Missing("a")))
}

func TestEnumStrings(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "created", ChangeCreated.String())
	assert.Equal(t, "deleted", ChangeDeleted.String())
	assert.Equal(t, "push", DirectionUpload.String())
	assert.Equal(t, "pull", DirectionDownload.String())
	assert.Equal(t, "conflict", Conflict.String())
	assert.Equal(t, "no_conflict", NoConflict.String())
	assert.Equal(t, "active", StateActive.String())
	assert.Equal(t, "stopped", StateStopped.String())
}

// Only one file may carry the package comment, or godoc picks an arbitrary one.
func TestPackageDocIsInTypesGo(t *testing.T) {
	t.Parallel()

	files, err := filepath.Glob("*.go")
	require.NoError(t, err)

	fset := token.NewFileSet()

	var withDoc []string

	for _, name := range files {
		if strings.HasSuffix(name, "_test.go") {
			continue
		}

		f, err := parser.ParseFile(fset, name, nil, parser.PackageClauseOnly|parser.ParseComments)
		require.NoError(t, err)

		if f.Doc != nil {
			withDoc = append(withDoc, name)
		}
	}

	assert.Equal(t, []string{"types.go"}, withDoc)
}
