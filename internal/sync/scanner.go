package sync

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/afero"
	"golang.org/x/text/unicode/norm"
)

// ScanLocal walks root and returns metadata for every regular file, keyed by
// normalized root-relative path. Excluded paths are skipped, excluded
// directories are not descended into. Entries that vanish or cannot be
// stat'ed mid-walk are skipped.
func ScanLocal(
	ctx context.Context, fsys afero.Fs, root string, filter *Filter, logger *slog.Logger,
) (map[string]FileMetadata, error) {
	out := make(map[string]FileMetadata)

	err := afero.Walk(fsys, root, func(p string, info fs.FileInfo, walkErr error) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if walkErr != nil {
			logger.Debug("scan: skipping unreadable entry",
				slog.String("path", p), slog.String("error", walkErr.Error()))

			if info != nil && info.IsDir() {
				return filepath.SkipDir
			}

			return nil
		}

		if p == root {
			return nil
		}

		rel, err := relativePath(root, p)
		if err != nil {
			return nil
		}

		if filter.Excluded(rel) {
			if info.IsDir() {
				return filepath.SkipDir
			}

			return nil
		}

		if !info.Mode().IsRegular() {
			return nil
		}

		out[rel] = FileMetadata{
			Path:    rel,
			ModTime: epochSeconds(info.ModTime()),
			Size:    info.Size(),
			Exists:  true,
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("sync: scanning %s: %w", root, err)
	}

	logger.Debug("local scan complete", slog.String("root", root), slog.Int("files", len(out)))

	return out, nil
}

// relativePath converts an absolute local path under root into the
// normalized form used as a map key: forward slashes, NFC. Paths outside
// root fail with ErrOutsideRoot.
func relativePath(root, p string) (string, error) {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, p)
	}

	if rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, p)
	}

	return normalizePath(filepath.ToSlash(rel)), nil
}

// normalizePath applies Unicode NFC to a slash path on macOS, where the
// filesystem hands back decomposed names but resolves either form. Other
// systems treat names as opaque bytes, so the path is left as stored.
func normalizePath(p string) string {
	if runtime.GOOS != "darwin" {
		return p
	}

	return norm.NFC.String(p)
}
