package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	stdsync "sync"
	"sync/atomic"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/sshcp/sshcp/internal/remote"
)

// Default watch cadence.
const (
	DefaultPollInterval = 5 * time.Second
	DefaultDebounce     = 500 * time.Millisecond
	tickInterval        = 100 * time.Millisecond
	watchEventBuf       = 256
)

// ConflictJournal persists resolved conflicts. *Journal implements it.
type ConflictJournal interface {
	Record(ctx context.Context, localRoot, remoteRoot string, rec ConflictRecord) error
}

// SessionConfig holds everything a watch Session needs. Zero values pick
// defaults where one exists.
type SessionConfig struct {
	LocalRoot  string
	RemoteRoot string

	Remote   remote.Executor
	Transfer remote.Transferer
	Fs       afero.Fs    // nil → OS filesystem
	Observer EventSource // nil → fsnotify observer on LocalRoot
	Policy   Policy      // nil → SkipPolicy
	Journal  ConflictJournal
	Filter   *Filter
	Clock    clockwork.Clock

	PollInterval   time.Duration
	Debounce       time.Duration
	CommandTimeout time.Duration

	Events  EventSink
	OnReady func(localFiles, remoteFiles int)
	Logger  *slog.Logger
}

// Session keeps one local directory and one remote directory synchronized
// in both directions until stopped. It owns the run loop, the baselines, the
// change queue and the in-flight set.
//
// The in-flight set is what stops feedback loops: a path stays marked for
// the whole of its apply operation, and local events for a marked path are
// dropped, so the session's own download never comes back as an upload.
type Session struct {
	cfg      SessionConfig
	state    *StateStore
	queue    *ChangeQueue
	detector *ConflictDetector
	executor *Executor
	poller   *RemotePoller
	failures *failureTracker
	logger   *slog.Logger

	// mu guards inflight together with the queue membership checks made
	// against it, so "queued" and "in flight" stay mutually exclusive.
	mu       stdsync.Mutex
	inflight mapset.Set[string]

	// skipped remembers the remote version a conflict was skipped against,
	// so the same version is not re-reported every poll. Run loop only.
	skipped map[string]FileMetadata
	// remoteSeeded is false until one remote enumeration has succeeded.
	remoteSeeded bool

	lifecycle atomic.Int32
	stopping  atomic.Bool
	aborted   atomic.Bool
	stopOnce  stdsync.Once
	stopCh    chan struct{}
}

// NewSession validates cfg and builds a Session. Nothing touches either side
// until Run.
func NewSession(cfg SessionConfig) (*Session, error) {
	if cfg.LocalRoot == "" || cfg.RemoteRoot == "" {
		return nil, errors.New("sync: local and remote roots are required")
	}

	if cfg.Remote == nil || cfg.Transfer == nil {
		return nil, errors.New("sync: remote executor and transferer are required")
	}

	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	if cfg.Fs == nil {
		cfg.Fs = afero.NewOsFs()
	}

	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}

	if cfg.Policy == nil {
		cfg.Policy = SkipPolicy{}
	}

	if cfg.Events == nil {
		cfg.Events = discardEvents{}
	}

	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}

	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}

	if cfg.Observer == nil {
		cfg.Observer = NewLocalObserver(cfg.LocalRoot, cfg.Filter, cfg.Logger)
	}

	state := NewStateStore()

	s := &Session{
		cfg:      cfg,
		state:    state,
		queue:    NewChangeQueue(cfg.Clock, cfg.Logger),
		detector: NewConflictDetector(state),
		executor: NewExecutor(ExecutorConfig{
			Fs:             cfg.Fs,
			LocalRoot:      cfg.LocalRoot,
			RemoteRoot:     cfg.RemoteRoot,
			Remote:         cfg.Remote,
			Transfer:       cfg.Transfer,
			CommandTimeout: cfg.CommandTimeout,
			Events:         cfg.Events,
			Logger:         cfg.Logger,
		}, state),
		poller:   NewRemotePoller(cfg.Remote, cfg.RemoteRoot, cfg.Filter, cfg.CommandTimeout, cfg.Logger),
		failures: newFailureTracker(cfg.Clock),
		logger:   cfg.Logger,
		inflight: mapset.NewThreadUnsafeSet[string](),
		skipped:  make(map[string]FileMetadata),
		stopCh:   make(chan struct{}),
	}

	return s, nil
}

// State returns the current lifecycle state. Safe from any goroutine.
func (s *Session) State() State {
	return State(s.lifecycle.Load())
}

// Stop asks the run loop to finish. Safe from any goroutine, including a
// signal handler, and idempotent. A remote command already running
// completes first; the loop notices the request between items.
func (s *Session) Stop() {
	s.stopping.Store(true)
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// Err reports ErrAborted once a conflict policy has aborted the session and
// nil otherwise. Run returns nil in both cases.
func (s *Session) Err() error {
	if s.aborted.Load() {
		return ErrAborted
	}

	return nil
}

func (s *Session) stopRequested() bool {
	return s.stopping.Load()
}

// Enqueue records a local change unless the path is in flight. It reports
// whether the change was queued. Safe from any goroutine.
func (s *Session) Enqueue(path string, kind ChangeKind) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.inflight.Contains(path) {
		s.logger.Debug("dropping event for in-flight path",
			slog.String("path", path), slog.String("kind", kind.String()))

		return false
	}

	s.queue.Enqueue(path, kind)

	return true
}

// tryAcquire marks path in flight. It fails if the path is already in flight
// or has a newer change queued; that newer change supersedes this one.
func (s *Session) tryAcquire(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.inflight.Contains(path) || s.queue.Contains(path) {
		return false
	}

	s.inflight.Add(path)

	return true
}

func (s *Session) release(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.inflight.Remove(path)
}

// withInFlight runs fn with path marked in flight and always releases it.
func (s *Session) withInFlight(path string, fn func()) bool {
	if !s.tryAcquire(path) {
		return false
	}
	defer s.release(path)

	fn()

	return true
}

// InFlight reports whether path is currently being synchronized.
func (s *Session) InFlight(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.inflight.Contains(path)
}

// Run starts the session and blocks until Stop is called, a conflict policy
// aborts, or ctx is canceled. Only failing to create the local root is
// fatal; every remote failure is logged and retried by a later cycle.
func (s *Session) Run(ctx context.Context) error {
	if !s.lifecycle.CompareAndSwap(int32(StateIdle), int32(StateInitializing)) {
		return ErrSessionRunning
	}

	defer s.lifecycle.Store(int32(StateStopped))

	s.logger.Info("watch session starting",
		slog.String("local", s.cfg.LocalRoot),
		slog.String("remote", s.cfg.RemoteRoot),
		slog.String("policy", s.cfg.Policy.Name()),
		slog.Duration("poll_interval", s.cfg.PollInterval),
		slog.Duration("debounce", s.cfg.Debounce),
	)

	if err := s.cfg.Fs.MkdirAll(s.cfg.LocalRoot, dirPermissions); err != nil {
		return fmt.Errorf("sync: creating local root %s: %w", s.cfg.LocalRoot, err)
	}

	// Stopped before it started, e.g. a signal while the CLI was connecting.
	if s.stopRequested() {
		s.logger.Info("watch session stopped before start")
		return nil
	}

	if err := s.executor.EnsureRemoteRoot(ctx); err != nil {
		s.logger.Warn("could not create remote root", slog.String("error", err.Error()))
	}

	s.seed(ctx)

	s.lifecycle.Store(int32(StateActive))

	stopObserver := s.startObserver(ctx)

	s.loop(ctx)

	s.lifecycle.Store(int32(StateStopping))
	s.logger.Info("watch session stopping")
	stopObserver()
	s.logger.Info("watch session stopped")

	return nil
}

// seed scans both sides concurrently and installs the results as the
// initial baselines. A failed scan seeds an empty side.
func (s *Session) seed(ctx context.Context) {
	var local, rmt map[string]FileMetadata

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		m, err := ScanLocal(gctx, s.cfg.Fs, s.cfg.LocalRoot, s.cfg.Filter, s.logger)
		if err != nil {
			s.logger.Warn("initial local scan failed", slog.String("error", err.Error()))
			m = map[string]FileMetadata{}
		}

		local = m

		return nil
	})

	g.Go(func() error {
		m, err := s.poller.Snapshot(gctx)
		if err != nil {
			s.logger.Warn("initial remote scan failed, will seed from first poll",
				slog.String("error", err.Error()))

			m = map[string]FileMetadata{}
		} else {
			s.remoteSeeded = true
		}

		rmt = m

		return nil
	})

	_ = g.Wait() // both goroutines swallow their errors

	s.state.Seed(local, rmt)

	s.logger.Info("baselines seeded",
		slog.Int("local_files", len(local)),
		slog.Int("remote_files", len(rmt)),
	)

	if s.cfg.OnReady != nil {
		s.cfg.OnReady(len(local), len(rmt))
	}
}

// startObserver runs the local observer and a bridge that feeds its events
// into Enqueue. The returned func stops both and waits for them.
func (s *Session) startObserver(ctx context.Context) func() {
	obsCtx, cancel := context.WithCancel(ctx)
	events := make(chan LocalEvent, watchEventBuf)

	var wg stdsync.WaitGroup

	wg.Add(2) //nolint:mnd // observer + bridge

	go func() {
		defer wg.Done()

		if err := s.cfg.Observer.Watch(obsCtx, events); err != nil {
			s.logger.Error("local observer stopped, continuing with remote polling only",
				slog.String("error", err.Error()))
		}
	}()

	go func() {
		defer wg.Done()

		for {
			select {
			case <-obsCtx.Done():
				return
			case ev := <-events:
				s.Enqueue(ev.Path, ev.Kind)
			}
		}
	}()

	return func() {
		cancel()
		wg.Wait()
	}
}

// loop ticks until stopped, draining the queue every debounce interval and
// polling the remote every poll interval.
func (s *Session) loop(ctx context.Context) {
	ticker := s.cfg.Clock.NewTicker(tickInterval)
	defer ticker.Stop()

	lastProcess := s.cfg.Clock.Now()
	lastPoll := lastProcess

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.Chan():
		}

		now := s.cfg.Clock.Now()

		if now.Sub(lastProcess) >= s.cfg.Debounce {
			s.processPending(ctx)
			lastProcess = now
		}

		if s.stopRequested() {
			return
		}

		if now.Sub(lastPoll) >= s.cfg.PollInterval {
			s.pollRemote(ctx)
			lastPoll = now
		}

		if s.stopRequested() {
			return
		}
	}
}

// processPending drains the queue and pushes each local change.
func (s *Session) processPending(ctx context.Context) {
	for _, pc := range s.queue.Drain() {
		if s.stopRequested() || ctx.Err() != nil {
			return
		}

		s.withInFlight(pc.Path, func() { s.syncLocalChange(ctx, pc) })
	}
}

// pollRemote enumerates the remote side and pulls every difference from the
// remote baseline. A failed enumeration leaves everything as it was.
func (s *Session) pollRemote(ctx context.Context) {
	snap, err := s.poller.Snapshot(ctx)
	if err != nil {
		s.logger.Warn("remote poll failed", slog.String("error", err.Error()))
		return
	}

	if !s.remoteSeeded {
		s.state.ReplaceRemote(snap)
		s.remoteSeeded = true
		s.logger.Info("remote baseline seeded from poll", slog.Int("remote_files", len(snap)))

		return
	}

	diff := DiffRemote(s.state.RemoteSnapshot(), snap)
	if diff.Empty() {
		return
	}

	s.logger.Debug("remote changes detected",
		slog.Int("changed", len(diff.Changed)),
		slog.Int("deleted", len(diff.Deleted)),
	)

	for _, rmt := range diff.Changed {
		if s.stopRequested() || ctx.Err() != nil {
			return
		}

		s.withInFlight(rmt.Path, func() { s.pullRemoteChange(ctx, rmt) })
	}

	for _, p := range diff.Deleted {
		if s.stopRequested() || ctx.Err() != nil {
			return
		}

		s.withInFlight(p, func() { s.pullRemoteDeletion(ctx, p) })
	}
}

// resolve builds a ConflictRecord, asks the policy and journals the answer.
func (s *Session) resolve(ctx context.Context, path string, local, rmt FileMetadata) Action {
	rec := ConflictRecord{
		ID:         uuid.NewString(),
		Path:       path,
		Local:      local,
		Remote:     rmt,
		DetectedAt: s.cfg.Clock.Now(),
		Policy:     s.cfg.Policy.Name(),
	}

	rec.Action = s.cfg.Policy.Resolve(ctx, rec)

	s.logger.Info("conflict resolved",
		slog.String("path", path),
		slog.String("policy", rec.Policy),
		slog.String("action", rec.Action.String()),
	)

	s.cfg.Events.SyncEvent(Event{
		Time:   rec.DetectedAt,
		Op:     OpConflict,
		Path:   path,
		Detail: rec.Action.String(),
	})

	if s.cfg.Journal != nil {
		if err := s.cfg.Journal.Record(ctx, s.cfg.LocalRoot, s.cfg.RemoteRoot, rec); err != nil {
			s.logger.Warn("could not journal conflict", slog.String("path", path), slog.String("error", err.Error()))
		}
	}

	if rec.Action == ActionAbort {
		s.logger.Warn("conflict policy aborted the session", slog.String("path", path))
		s.aborted.Store(true)
		s.Stop()
	}

	return rec.Action
}

// apply dispatches to the executor and logs failures. A failure is
// transient: the baselines are untouched and a later event retries.
func (s *Session) apply(ctx context.Context, path string, dir Direction, kind ChangeKind) {
	err := s.executor.Apply(ctx, path, dir, kind)
	if err == nil {
		s.failures.recordSuccess(path)
		delete(s.skipped, path)

		return
	}

	count, loud := s.failures.recordFailure(path)

	level := slog.LevelWarn
	if !loud {
		level = slog.LevelDebug
	}

	s.logger.Log(ctx, level, "sync failed",
		slog.String("path", path),
		slog.String("direction", dir.String()),
		slog.String("kind", kind.String()),
		slog.Int("consecutive_failures", count),
		slog.String("error", err.Error()),
	)
}

func (s *Session) emitSkipped(dir Direction, path string) {
	s.cfg.Events.SyncEvent(Event{Time: s.cfg.Clock.Now(), Direction: dir, Op: OpSkipped, Path: path})
}
