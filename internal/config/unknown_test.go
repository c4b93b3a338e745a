package config

import (
	"testing"

	"github.com/BurntSushi/toml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeKeys(t *testing.T, content string) error {
	t.Helper()

	md, err := toml.Decode(content, DefaultConfig())
	require.NoError(t, err)

	return checkUnknownKeys(&md)
}

func TestCheckUnknownKeys_Clean(t *testing.T) {
	t.Parallel()

	assert.NoError(t, decodeKeys(t, "host = \"a\"\n[bookmarks]\nanything = \"/x\"\n"))
}

func TestCheckUnknownKeys_TopLevelTypo(t *testing.T) {
	t.Parallel()

	err := decodeKeys(t, `hots = "prod"`)
	require.Error(t, err)
	assert.Equal(t, `unknown config key "hots" (did you mean "host"?)`, err.Error())
}

func TestCheckUnknownKeys_UnknownTableReportedOnce(t *testing.T) {
	t.Parallel()

	err := decodeKeys(t, "[network]\na = 1\nb = 2\n")
	require.Error(t, err)
	assert.Equal(t, `unknown config key "network"`, err.Error())
}

func TestCheckUnknownKeys_NoSuggestionWhenFar(t *testing.T) {
	t.Parallel()

	err := decodeKeys(t, "[remote]\ncompletely_different = 1\n")
	require.Error(t, err)
	assert.Equal(t, `unknown config key "remote.completely_different"`, err.Error())
}

func TestLevenshtein(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0, levenshtein("host", "host"))
	assert.Equal(t, 1, levenshtein("hst", "host"))
	assert.Equal(t, 2, levenshtein("hots", "host"))
	assert.Equal(t, 3, levenshtein("", "abc"))
	assert.Equal(t, 3, levenshtein("kitten", "sitting"))
}

func TestClosestMatch(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "debounce", closestMatch("debounse", knownKeys["watch"]))
	assert.Equal(t, "", closestMatch("zzzzzzzz", knownKeys["watch"]))
	assert.Equal(t, "port", closestMatch("PORT", knownKeys["remote"]))
}
