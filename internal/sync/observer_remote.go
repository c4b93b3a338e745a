package sync

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/sshcp/sshcp/internal/remote"
)

// remoteMtimeTolerance is the smallest remote mtime movement the poller
// treats as a change. Filesystems and copy tools round sub-second parts
// differently; a size change is always a change.
const remoteMtimeTolerance = 1.0

// RemotePoller enumerates the remote root with a single command per cycle.
// There is no remote change notification, so every poll is a full refresh
// whose cost grows with the size of the remote tree.
type RemotePoller struct {
	exec    remote.Executor
	root    string
	filter  *Filter
	timeout time.Duration
	logger  *slog.Logger
}

// NewRemotePoller creates a poller for root.
func NewRemotePoller(
	exec remote.Executor, root string, filter *Filter, timeout time.Duration, logger *slog.Logger,
) *RemotePoller {
	if timeout <= 0 {
		timeout = remote.DefaultCommandTimeout
	}

	return &RemotePoller{exec: exec, root: root, filter: filter, timeout: timeout, logger: logger}
}

// Snapshot returns metadata for every regular file under the remote root.
// A failed or timed-out enumeration returns an error wrapping
// ErrSnapshotFailed and no map; callers keep their previous view.
func (p *RemotePoller) Snapshot(ctx context.Context) (map[string]FileMetadata, error) {
	out, err := p.exec.Run(ctx, remote.ListCommand(p.root), p.timeout)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSnapshotFailed, err)
	}

	entries, skipped := remote.ParseListing(out)
	if skipped > 0 {
		p.logger.Debug("remote listing: skipped malformed lines", slog.Int("skipped", skipped))
	}

	snap := make(map[string]FileMetadata, len(entries))

	for _, e := range entries {
		rel := normalizePath(e.Path)
		if rel == "" || p.filter.Excluded(rel) {
			continue
		}

		snap[rel] = FileMetadata{Path: rel, ModTime: e.ModTime, Size: e.Size, Exists: true}
	}

	return snap, nil
}

// RemoteDiff is what changed on the remote side between two snapshots.
type RemoteDiff struct {
	Changed []FileMetadata // new paths and paths whose mtime or size moved
	Deleted []string       // paths in the previous snapshot, absent now
}

// Empty reports whether the diff has no entries.
func (d RemoteDiff) Empty() bool {
	return len(d.Changed) == 0 && len(d.Deleted) == 0
}

// DiffRemote compares the current snapshot against the remote baseline.
// Deletions are found by set difference. Both lists are sorted by path.
func DiffRemote(prev, cur map[string]FileMetadata) RemoteDiff {
	var d RemoteDiff

	for rel, now := range cur {
		before, ok := prev[rel]
		if ok && math.Abs(now.ModTime-before.ModTime) < remoteMtimeTolerance && now.Size == before.Size {
			continue
		}

		d.Changed = append(d.Changed, now)
	}

	for rel := range prev {
		if _, ok := cur[rel]; !ok {
			d.Deleted = append(d.Deleted, rel)
		}
	}

	sort.Slice(d.Changed, func(i, j int) bool { return d.Changed[i].Path < d.Changed[j].Path })
	sort.Strings(d.Deleted)

	return d
}
