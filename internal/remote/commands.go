package remote

import (
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/alessio/shellescape"
)

// NotFoundMarker is printed by the stat probe when the path does not exist.
const NotFoundMarker = "NOTFOUND"

// listingFields is the number of fields in one enumeration line:
// relativePath|epochMtime|sizeBytes.
const listingFields = 3

// Entry is one file reported by the remote host.
type Entry struct {
	Path    string
	ModTime float64
	Size    int64
}

// StatCommand returns the probe for a single path. It prints
// "<epochMtime> <sizeBytes>" with the same sub-second precision as the
// enumeration, or NotFoundMarker.
func StatCommand(p string) string {
	return fmt.Sprintf("find %s -maxdepth 0 -type f -printf '%%T@ %%s\\n' 2>/dev/null | grep . || echo %s",
		shellescape.Quote(p), NotFoundMarker)
}

// ListCommand returns the enumeration of every regular file under root, one
// "relativePath|epochMtime|sizeBytes" line per file.
func ListCommand(root string) string {
	return fmt.Sprintf("find %s -type f -printf '%%P|%%T@|%%s\\n' 2>/dev/null", shellescape.Quote(root))
}

// MkdirCommand returns a command creating dir and its parents.
func MkdirCommand(dir string) string {
	return "mkdir -p " + shellescape.Quote(dir)
}

// RemoveCommand returns a command deleting a single file. Removing a missing
// file succeeds.
func RemoveCommand(p string) string {
	return "rm -f " + shellescape.Quote(p)
}

// Join joins a remote root and a root-relative slash path.
func Join(root, rel string) string {
	if rel == "" {
		return root
	}

	return path.Join(root, rel)
}

// ParseStat parses the output of StatCommand. exists is false when the probe
// printed NotFoundMarker. Output in any other shape is an ErrCommandFailed.
func ParseStat(out string) (modTime float64, size int64, exists bool, err error) {
	out = strings.TrimSpace(out)
	if out == NotFoundMarker {
		return 0, 0, false, nil
	}

	fields := strings.Fields(out)
	if len(fields) != 2 { //nolint:mnd // "<mtime> <size>"
		return 0, 0, false, fmt.Errorf("%w: malformed stat output %q", ErrCommandFailed, out)
	}

	modTime, err = strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, 0, false, fmt.Errorf("%w: parsing mtime %q: %w", ErrCommandFailed, fields[0], err)
	}

	size, err = strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return 0, 0, false, fmt.Errorf("%w: parsing size %q: %w", ErrCommandFailed, fields[1], err)
	}

	return modTime, size, true, nil
}

// ParseListing parses enumeration output. Lines that are empty, lack the
// separator, have too few fields or carry unparsable numbers are skipped and
// counted. The path is everything before the last two separators, so names
// containing '|' survive.
func ParseListing(out string) (entries []Entry, skipped int) {
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}

		e, ok := parseListingLine(line)
		if !ok {
			skipped++
			continue
		}

		entries = append(entries, e)
	}

	return entries, skipped
}

func parseListingLine(line string) (Entry, bool) {
	sizeSep := strings.LastIndexByte(line, '|')
	if sizeSep < 0 {
		return Entry{}, false
	}

	mtimeSep := strings.LastIndexByte(line[:sizeSep], '|')
	if mtimeSep <= 0 {
		return Entry{}, false
	}

	parts := [listingFields]string{line[:mtimeSep], line[mtimeSep+1 : sizeSep], line[sizeSep+1:]}

	modTime, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return Entry{}, false
	}

	size, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return Entry{}, false
	}

	return Entry{Path: parts[0], ModTime: modTime, Size: size}, true
}
