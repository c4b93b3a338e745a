package sync

import (
	stdsync "sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Repeated-failure log damping. A path whose transfer keeps failing (remote
// disk full, permission denied) is still retried on every event and poll;
// only the warning is throttled.
const (
	failureLoudLimit = 3
	failureCooldown  = 10 * time.Minute
)

type failureRecord struct {
	count  int
	lastAt time.Time
}

// failureTracker counts consecutive failures per path so the session can
// drop repeats to debug level. Success clears the record.
type failureTracker struct {
	mu      stdsync.Mutex
	records map[string]*failureRecord
	clock   clockwork.Clock
}

func newFailureTracker(clock clockwork.Clock) *failureTracker {
	return &failureTracker{
		records: make(map[string]*failureRecord),
		clock:   clock,
	}
}

// recordFailure counts a failure for path and reports whether it should be
// logged loudly. Counts reset after failureCooldown without failures.
func (ft *failureTracker) recordFailure(path string) (count int, loud bool) {
	ft.mu.Lock()
	defer ft.mu.Unlock()

	now := ft.clock.Now()

	rec, ok := ft.records[path]
	if !ok || now.Sub(rec.lastAt) > failureCooldown {
		rec = &failureRecord{}
		ft.records[path] = rec
	}

	rec.count++
	rec.lastAt = now

	return rec.count, rec.count <= failureLoudLimit
}

// recordSuccess clears the failure record for path.
func (ft *failureTracker) recordSuccess(path string) {
	ft.mu.Lock()
	defer ft.mu.Unlock()

	delete(ft.records, path)
}

// failing returns the number of paths with an open failure record.
func (ft *failureTracker) failing() int {
	ft.mu.Lock()
	defer ft.mu.Unlock()

	return len(ft.records)
}
