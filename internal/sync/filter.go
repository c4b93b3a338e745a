package sync

import (
	"fmt"
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/sshcp/sshcp/internal/remote"
)

// Filter decides which root-relative paths the watch ignores. Patterns use
// doublestar syntax ("**/*.swp", "build/**"). A pattern without a slash
// also matches the base name at any depth, the way .gitignore does.
type Filter struct {
	patterns []string
}

// NewFilter validates patterns and returns a Filter. An empty pattern list
// excludes nothing.
func NewFilter(patterns []string) (*Filter, error) {
	f := &Filter{}

	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}

		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("sync: invalid exclude pattern %q", p)
		}

		f.patterns = append(f.patterns, p)
	}

	return f, nil
}

// Excluded reports whether rel, or any directory containing it, matches an
// exclude pattern. In-progress downloads are always excluded; otherwise a
// nil Filter excludes nothing.
func (f *Filter) Excluded(rel string) bool {
	if remote.IsPartialName(path.Base(rel)) {
		return true
	}

	if f == nil || len(f.patterns) == 0 {
		return false
	}

	for p := rel; p != "." && p != "/" && p != ""; p = path.Dir(p) {
		if f.matches(p) {
			return true
		}
	}

	return false
}

func (f *Filter) matches(rel string) bool {
	base := path.Base(rel)

	for _, pattern := range f.patterns {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}

		if !strings.Contains(pattern, "/") {
			if ok, _ := doublestar.Match(pattern, base); ok {
				return true
			}
		}
	}

	return false
}

// Patterns returns the active patterns.
func (f *Filter) Patterns() []string {
	if f == nil {
		return nil
	}

	return append([]string(nil), f.patterns...)
}
