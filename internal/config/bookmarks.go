package config

import (
	"fmt"
	"strings"
	"unicode"
)

// bookmarkPrefix marks a remote path that starts with a bookmark name.
const bookmarkPrefix = "@"

// ValidBookmarkName reports whether name is non-empty and made only of
// letters, digits, underscores and hyphens.
func ValidBookmarkName(name string) bool {
	if name == "" {
		return false
	}

	for _, r := range name {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' && r != '-' {
			return false
		}
	}

	return true
}

// ExpandBookmark rewrites "@name/rest" to the bookmarked path joined with
// rest. Paths without the prefix are returned unchanged. An unknown name is
// an error so a typo never becomes a literal remote directory.
func ExpandBookmark(bookmarks map[string]string, p string) (string, error) {
	if !strings.HasPrefix(p, bookmarkPrefix) {
		return p, nil
	}

	name, rest, found := strings.Cut(p[len(bookmarkPrefix):], "/")
	if found {
		rest = "/" + rest
	}

	target, ok := bookmarks[name]
	if !ok {
		return "", fmt.Errorf("unknown bookmark %q", name)
	}

	if strings.HasSuffix(target, "/") && strings.HasPrefix(rest, "/") {
		rest = rest[1:]
	}

	return target + rest, nil
}
