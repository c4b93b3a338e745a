package sync

import (
	"log/slog"
	"sort"
	stdsync "sync"

	"github.com/jonboulle/clockwork"
)

// ChangeQueue coalesces local change events per path between debounce ticks.
// The observer enqueues from its own goroutine and the session drains on a
// fixed cadence, so the rate of remote commands stays bounded. It holds at
// most one PendingChange per path. All methods are safe for concurrent use.
type ChangeQueue struct {
	mu      stdsync.Mutex
	pending map[string]PendingChange
	clock   clockwork.Clock
	logger  *slog.Logger
}

// NewChangeQueue creates an empty queue stamping entries with clock.
func NewChangeQueue(clock clockwork.Clock, logger *slog.Logger) *ChangeQueue {
	return &ChangeQueue{
		pending: make(map[string]PendingChange),
		clock:   clock,
		logger:  logger,
	}
}

// Enqueue merges a change into the pending entry for path. The newest kind
// and timestamp win: created then deleted collapses to deleted, deleted then
// created collapses to created. Only the net effect matters for dispatch.
func (q *ChangeQueue) Enqueue(path string, kind ChangeKind) {
	q.mu.Lock()
	defer q.mu.Unlock()

	prev, merged := q.pending[path]

	q.pending[path] = PendingChange{
		Path:       path,
		Kind:       kind,
		DetectedAt: q.clock.Now(),
	}

	if merged {
		q.logger.Debug("queue: coalesced change",
			slog.String("path", path),
			slog.String("previous", prev.Kind.String()),
			slog.String("kind", kind.String()),
		)
	}
}

// Drain atomically returns and clears all pending changes, oldest first.
// Returns nil for an empty queue.
func (q *ChangeQueue) Drain() []PendingChange {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pending) == 0 {
		return nil
	}

	out := make([]PendingChange, 0, len(q.pending))
	for _, pc := range q.pending {
		out = append(out, pc)
	}

	q.pending = make(map[string]PendingChange)

	sort.Slice(out, func(i, j int) bool {
		if out[i].DetectedAt.Equal(out[j].DetectedAt) {
			return out[i].Path < out[j].Path
		}

		return out[i].DetectedAt.Before(out[j].DetectedAt)
	})

	q.logger.Debug("queue drained", slog.Int("paths", len(out)))

	return out
}

// Contains reports whether path has a pending change.
func (q *ChangeQueue) Contains(path string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	_, ok := q.pending[path]

	return ok
}

// Len returns the number of distinct queued paths.
func (q *ChangeQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.pending)
}
