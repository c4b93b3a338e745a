// Package sync implements the bidirectional watch engine: a local observer
// and a remote poller feed changes through a three-way conflict check
// against the last synchronized baselines into an executor that transfers
// or deletes files over a remote.Executor and remote.Transferer.
package sync

import (
	"errors"
	"math"
	"time"
)

// Sentinel errors for the watch engine.
var (
	// ErrOutsideRoot is returned when a filesystem event refers to a path that
	// does not live under the watched local root. Such events are dropped.
	ErrOutsideRoot = errors.New("sync: path outside watched root")

	// ErrSnapshotFailed wraps any failure of the remote enumeration command.
	// The caller must treat it as "no update this cycle".
	ErrSnapshotFailed = errors.New("sync: remote snapshot failed")

	// ErrAborted is reported by Session.Err when a conflict policy stopped the
	// session. Run itself returns nil for it.
	ErrAborted = errors.New("sync: aborted by conflict policy")

	// ErrSessionRunning is returned by Run when the session was already started.
	ErrSessionRunning = errors.New("sync: session already started")
)

// ChangeKind is the net effect of one or more filesystem events on a path.
type ChangeKind int

// ChangeKind values.
const (
	ChangeCreated ChangeKind = iota
	ChangeModified
	ChangeDeleted
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeCreated:
		return "created"
	case ChangeModified:
		return "modified"
	case ChangeDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// Direction is the direction a change flows when it is applied.
type Direction int

// Direction values.
const (
	DirectionUpload   Direction = iota // local → remote
	DirectionDownload                  // remote → local
)

func (d Direction) String() string {
	if d == DirectionDownload {
		return "pull"
	}

	return "push"
}

// FileMetadata is an immutable snapshot of one file on one side. Path is
// root-relative, forward-slash separated and NFC normalized. ModTime is in
// seconds since the Unix epoch with sub-second precision where the side
// provides it. A file that does not exist is represented explicitly with
// Exists=false so "never seen" and "deleted" stay distinguishable.
type FileMetadata struct {
	Path    string
	ModTime float64
	Size    int64
	Exists  bool
}

// Missing returns the metadata of a path that does not exist.
func Missing(path string) FileMetadata {
	return FileMetadata{Path: path}
}

// Time converts ModTime to a time.Time.
func (m FileMetadata) Time() time.Time {
	sec, frac := math.Modf(m.ModTime)

	return time.Unix(int64(sec), int64(frac*float64(time.Second)))
}

// sameVersion reports whether two snapshots describe the same file version
// as far as coarse metadata can tell.
func (m FileMetadata) sameVersion(o FileMetadata) bool {
	return m.Exists == o.Exists && m.ModTime == o.ModTime && m.Size == o.Size
}

// epochSeconds converts a time.Time to fractional epoch seconds.
func epochSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

// PendingChange is one coalesced local change waiting for dispatch.
type PendingChange struct {
	Path       string
	Kind       ChangeKind
	DetectedAt time.Time
}

// Classification is the Conflict Detector's verdict for a path.
type Classification int

// Classification values.
const (
	NoConflict Classification = iota
	Conflict
)

func (c Classification) String() string {
	if c == Conflict {
		return "conflict"
	}

	return "no_conflict"
}

// Action is what a conflict resolution policy decided for a conflict.
type Action int

// Action values.
const (
	ActionSkip Action = iota
	ActionUseLocal
	ActionUseRemote
	ActionAbort
)

func (a Action) String() string {
	switch a {
	case ActionUseLocal:
		return "local"
	case ActionUseRemote:
		return "remote"
	case ActionAbort:
		return "abort"
	default:
		return "skip"
	}
}

// ParseAction maps a journal string back to an Action.
func ParseAction(s string) Action {
	switch s {
	case "local":
		return ActionUseLocal
	case "remote":
		return ActionUseRemote
	case "abort":
		return ActionAbort
	default:
		return ActionSkip
	}
}

// ConflictRecord describes a path whose local and remote copies both changed
// since the last reconciliation. It is built only when the detector reports
// Conflict. Policy and Action are filled in after resolution.
type ConflictRecord struct {
	ID         string
	Path       string
	Local      FileMetadata
	Remote     FileMetadata
	DetectedAt time.Time
	Policy     string
	Action     Action
}

// State is the lifecycle state of a watch Session.
type State int32

// State values. Stopped is terminal.
const (
	StateIdle State = iota
	StateInitializing
	StateActive
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateActive:
		return "active"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "idle"
	}
}

// EventOp labels a user-visible sync event.
type EventOp string

// EventOp values.
const (
	OpAdded    EventOp = "Added"
	OpUpdated  EventOp = "Updated"
	OpDeleted  EventOp = "Deleted"
	OpSkipped  EventOp = "Skipped"
	OpConflict EventOp = "Conflict"
)

// Event is a user-visible record of something the session did.
type Event struct {
	Time      time.Time
	Direction Direction
	Op        EventOp
	Path      string
	Detail    string
}

// EventSink receives session events. Implementations must not block for long;
// they are called from the run loop.
type EventSink interface {
	SyncEvent(ev Event)
}

// discardEvents is the EventSink used when none is configured.
type discardEvents struct{}

func (discardEvents) SyncEvent(Event) {}
