package sync

import (
	"sort"
	stdsync "sync"
)

// StateStore holds the two baselines: the metadata each side had at the last
// point both sides were known to agree on a path. It lives only as long as the
// watch session. All methods are safe for concurrent use.
//
// A path present in one baseline but not the other has never been reconciled
// since that side last changed. A path absent from both has been deleted on
// both sides and is forgotten.
type StateStore struct {
	mu     stdsync.RWMutex
	local  map[string]FileMetadata
	remote map[string]FileMetadata
}

// NewStateStore returns an empty StateStore.
func NewStateStore() *StateStore {
	return &StateStore{
		local:  make(map[string]FileMetadata),
		remote: make(map[string]FileMetadata),
	}
}

// Seed replaces both baselines with the results of the initial scans.
func (s *StateStore) Seed(local, remote map[string]FileMetadata) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.local = copyMetadataMap(local)
	s.remote = copyMetadataMap(remote)
}

// ReplaceRemote swaps in a whole remote baseline. Used when the initial
// remote scan failed and the first successful poll seeds it instead.
func (s *StateStore) ReplaceRemote(remote map[string]FileMetadata) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.remote = copyMetadataMap(remote)
}

// Local returns the local baseline entry for path.
func (s *StateStore) Local(path string) (FileMetadata, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.local[path]

	return m, ok
}

// Remote returns the remote baseline entry for path.
func (s *StateStore) Remote(path string) (FileMetadata, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.remote[path]

	return m, ok
}

// Known reports whether path is present in either baseline.
func (s *StateStore) Known(path string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, inLocal := s.local[path]
	_, inRemote := s.remote[path]

	return inLocal || inRemote
}

// Record writes freshly queried metadata for both sides of a path. A side
// whose metadata says the file does not exist is removed from its baseline.
func (s *StateStore) Record(local, remote FileMetadata) {
	s.mu.Lock()
	defer s.mu.Unlock()

	putOrDelete(s.local, local)
	putOrDelete(s.remote, remote)
}

// RecordLocal writes only the local side of a path.
func (s *StateStore) RecordLocal(local FileMetadata) {
	s.mu.Lock()
	defer s.mu.Unlock()

	putOrDelete(s.local, local)
}

// RecordRemote writes only the remote side of a path.
func (s *StateStore) RecordRemote(remote FileMetadata) {
	s.mu.Lock()
	defer s.mu.Unlock()

	putOrDelete(s.remote, remote)
}

// Forget removes path from both baselines.
func (s *StateStore) Forget(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.local, path)
	delete(s.remote, path)
}

// RemoteSnapshot returns a copy of the remote baseline. The poller diffs the
// next enumeration against it.
func (s *StateStore) RemoteSnapshot() map[string]FileMetadata {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return copyMetadataMap(s.remote)
}

// Len returns the sizes of the local and remote baselines.
func (s *StateStore) Len() (local, remote int) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.local), len(s.remote)
}

// Paths returns every path known to either baseline, sorted.
func (s *StateStore) Paths() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{}, len(s.local)+len(s.remote))
	for p := range s.local {
		seen[p] = struct{}{}
	}

	for p := range s.remote {
		seen[p] = struct{}{}
	}

	paths := make([]string, 0, len(seen))
	for p := range seen {
		paths = append(paths, p)
	}

	sort.Strings(paths)

	return paths
}

func putOrDelete(m map[string]FileMetadata, meta FileMetadata) {
	if !meta.Exists {
		delete(m, meta.Path)
		return
	}

	m[meta.Path] = meta
}

func copyMetadataMap(in map[string]FileMetadata) map[string]FileMetadata {
	out := make(map[string]FileMetadata, len(in))
	for k, v := range in {
		out[k] = v
	}

	return out
}
