package sync

// ConflictDetector classifies a path's current local/remote metadata against
// the baselines using a three-way comparison. It never reports a conflict for
// a path that has not been reconciled on both sides yet, and only escalates
// when both sides moved independently since the last reconciliation.
type ConflictDetector struct {
	state *StateStore
}

// NewConflictDetector returns a detector reading baselines from state.
func NewConflictDetector(state *StateStore) *ConflictDetector {
	return &ConflictDetector{state: state}
}

// Classify returns Conflict iff both baseline entries exist and both sides'
// modification times differ from their baseline.
func (d *ConflictDetector) Classify(path string, local, remote FileMetadata) Classification {
	bl, ok := d.state.Local(path)
	if !ok {
		return NoConflict
	}

	br, ok := d.state.Remote(path)
	if !ok {
		return NoConflict
	}

	localChanged := local.ModTime != bl.ModTime
	remoteChanged := remote.ModTime != br.ModTime

	if localChanged && remoteChanged {
		return Conflict
	}

	return NoConflict
}
