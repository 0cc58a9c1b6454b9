package store

import (
	"context"
	stdErrors "errors"
	"log/slog"
	"sync"

	"git.home.luguber.info/inful/pakctl/internal/logfields"
	"git.home.luguber.info/inful/pakctl/internal/observability"
	"git.home.luguber.info/inful/pakctl/internal/pakd"
	"git.home.luguber.info/inful/pakctl/internal/watch"
)

// ErrNotTracked is returned for operations on a package no caller holds.
var ErrNotTracked = stdErrors.New("package not tracked")

// ErrOperationInFlight is returned when a second mutating operation is
// attempted while one is already running for the same package.
var ErrOperationInFlight = stdErrors.New("operation already in flight")

// UpdateChecker decides whether a newer revision is available for an
// installed package. Implemented by the updates package.
type UpdateChecker interface {
	HasUpdate(local pakd.LocalInfo, catalog pakd.CatalogInfo) bool
}

// Store tracks one entry per acquired package. Entries are reference
// counted: the first Acquire builds the record, the last Release drops it.
// Snapshots fan out to subscribers on every state transition.
type Store struct {
	client  pakd.Client
	watcher *watch.Watcher
	updates UpdateChecker

	// defaultChannel is the configured fallback when the package neither
	// tracks a channel nor needs the catalog default.
	defaultChannel string

	mu      sync.Mutex
	entries map[string]*entry
	subs    map[string][]chan State
}

type entry struct {
	refs       int
	state      State
	opInFlight bool
}

// New creates a store on the given daemon client and change watcher.
func New(client pakd.Client, watcher *watch.Watcher, updates UpdateChecker, defaultChannel string) *Store {
	return &Store{
		client:         client,
		watcher:        watcher,
		updates:        updates,
		defaultChannel: defaultChannel,
		entries:        make(map[string]*entry),
		subs:           make(map[string][]chan State),
	}
}

// Acquire registers interest in a package and returns its current state.
// The first caller triggers a synchronous build; later callers share the
// existing entry and bump its reference count.
func (s *Store) Acquire(ctx context.Context, name string) State {
	s.mu.Lock()
	if e, ok := s.entries[name]; ok {
		e.refs++
		st := e.state
		s.mu.Unlock()
		return st
	}
	e := &entry{refs: 1, state: State{Phase: PhaseLoading}}
	s.entries[name] = e
	s.publishLocked(name, State{Phase: PhaseLoading})
	s.mu.Unlock()

	_ = s.Rebuild(ctx, name)

	st, _ := s.State(name)
	return st
}

// Release drops one reference. When the count reaches zero the entry is
// discarded; the next Acquire rebuilds from scratch.
func (s *Store) Release(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[name]
	if !ok {
		return
	}
	e.refs--
	if e.refs <= 0 {
		delete(s.entries, name)
	}
}

// State returns the current snapshot for a tracked package.
func (s *Store) State(name string) (State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[name]
	if !ok {
		return State{}, false
	}
	return e.state, true
}

// Rebuild refetches local, catalog and change data for a package and
// replaces its record. A build failure moves the entry to PhaseFailed and
// returns the error.
func (s *Store) Rebuild(ctx context.Context, name string) error {
	s.mu.Lock()
	e, ok := s.entries[name]
	if !ok {
		s.mu.Unlock()
		return ErrNotTracked
	}
	var prevActive string
	if e.state.Phase == PhaseReady {
		prevActive = e.state.Record.ActiveChangeID
	}
	s.mu.Unlock()

	ctx = observability.WithPackage(ctx, name)
	rec, pending, err := s.buildRecord(ctx, name)
	if err != nil {
		s.setState(name, State{Phase: PhaseFailed, Err: err})
		return err
	}

	rec.ActiveChangeID = pending
	s.setState(name, State{Phase: PhaseReady, Record: rec})

	// Re-attach only to changes nobody is watching yet; a pending id that
	// matches the previous record already has a watcher on it.
	if pending != "" && pending != prevActive {
		observability.InfoContext(ctx, "resuming in-flight change",
			logfields.ChangeID(pending))
		go s.watchResumed(name, pending)
	}
	return nil
}

func (s *Store) watchResumed(name, changeID string) {
	ctx := observability.WithChangeID(observability.WithPackage(context.Background(), name), changeID)
	err := s.watcher.Watch(ctx, changeID, watch.Options{
		Detach:           func() { s.ClearActiveChange(name, changeID) },
		RebuildOnSuccess: true,
		Rebuild: func(ctx context.Context) error {
			err := s.Rebuild(ctx, name)
			if stdErrors.Is(err, ErrNotTracked) {
				return nil
			}
			return err
		},
	})
	if err != nil && !stdErrors.Is(err, context.Canceled) {
		observability.WarnContext(ctx, "resumed change did not finish cleanly",
			logfields.Error(err))
	}
}

// BeginOperation reserves the package for a mutating operation. It fails
// with ErrOperationInFlight while another operation or change is active.
func (s *Store) BeginOperation(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[name]
	if !ok {
		return ErrNotTracked
	}
	if e.opInFlight {
		return ErrOperationInFlight
	}
	if e.state.Phase == PhaseReady && e.state.Record.ActiveChangeID != "" {
		return ErrOperationInFlight
	}
	e.opInFlight = true
	return nil
}

// FinishOperation releases the reservation taken by BeginOperation.
func (s *Store) FinishOperation(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[name]; ok {
		e.opInFlight = false
	}
}

// SetActiveChange marks a change as in flight on the package's record.
func (s *Store) SetActiveChange(name, changeID string) {
	s.mutateRecord(name, func(rec *PackageRecord) bool {
		rec.ActiveChangeID = changeID
		return true
	})
}

// ClearActiveChange clears the active change id, but only when it still
// matches: a newer change (such as an abort) must not be wiped by the
// watcher of the change it superseded.
func (s *Store) ClearActiveChange(name, changeID string) {
	s.mutateRecord(name, func(rec *PackageRecord) bool {
		if rec.ActiveChangeID != changeID {
			return false
		}
		rec.ActiveChangeID = ""
		return true
	})
}

// SetChannel writes the selected channel on the record. Validation against
// the catalog is the caller's concern.
func (s *Store) SetChannel(name, channel string) {
	s.mutateRecord(name, func(rec *PackageRecord) bool {
		rec.SelectedChannel = channel
		return true
	})
}

func (s *Store) mutateRecord(name string, mutate func(*PackageRecord) bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[name]
	if !ok || e.state.Phase != PhaseReady {
		return
	}
	if !mutate(&e.state.Record) {
		return
	}
	s.publishLocked(name, e.state)
}

func (s *Store) setState(name string, st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[name]
	if !ok {
		return
	}
	e.state = st
	s.publishLocked(name, st)
}

// Snapshot returns the current state of every tracked package.
func (s *Store) Snapshot() map[string]State {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]State, len(s.entries))
	for name, e := range s.entries {
		out[name] = e.state
	}
	return out
}

// Subscribe returns a channel of state snapshots for a package and an
// unsubscribe function. Slow consumers lose intermediate snapshots rather
// than blocking the store.
func (s *Store) Subscribe(name string) (<-chan State, func()) {
	ch := make(chan State, 10)
	s.mu.Lock()
	s.subs[name] = append(s.subs[name], ch)
	s.mu.Unlock()

	unsubscribe := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		list := s.subs[name]
		for i, c := range list {
			if c == ch {
				s.subs[name] = append(list[:i], list[i+1:]...)
				close(ch)
				return
			}
		}
	}
	return ch, unsubscribe
}

// publishLocked fans a snapshot out to the package's subscribers. The caller
// must hold s.mu: unsubscribe closes channels under the same lock, so sending
// here cannot race a close. The sends never block, so holding the lock is safe.
func (s *Store) publishLocked(name string, st State) {
	for _, ch := range s.subs[name] {
		select {
		case ch <- st:
		default:
			slog.Warn("dropping state snapshot for slow subscriber",
				slog.String(logfields.KeyPackage, name))
		}
	}
}
