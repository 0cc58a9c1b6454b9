// Package watch resolves a daemon change to exactly one terminal outcome.
package watch

import (
	"context"
	"sync"
	"sync/atomic"

	"git.home.luguber.info/inful/pakctl/internal/journal"
	"git.home.luguber.info/inful/pakctl/internal/logfields"
	"git.home.luguber.info/inful/pakctl/internal/metrics"
	"git.home.luguber.info/inful/pakctl/internal/observability"
	"git.home.luguber.info/inful/pakctl/internal/pakd"
)

// Options control a single watch's side effects.
type Options struct {
	// Detach runs exactly once when the watch ends, regardless of outcome:
	// clean completion, change failure, or cancellation of the watch itself.
	// Used to clear the owning record's active change id.
	Detach func()

	// RebuildOnSuccess invokes Rebuild after a clean terminal event. Install
	// and refresh want this; cancel manages its own rebuild timing and
	// leaves it off.
	RebuildOnSuccess bool
	Rebuild          func(ctx context.Context) error
}

// Watcher subscribes to change event streams and blocks until the change
// reaches its terminal state. A change with an error event resolves as
// pakd.ChangeFailedError; a ready event without error resolves as nil.
type Watcher struct {
	streams  pakd.ChangeStreamer
	journal  journal.Store
	recorder metrics.Recorder
	active   atomic.Int64
}

// New creates a watcher on the given stream transport.
func New(streams pakd.ChangeStreamer) *Watcher {
	return &Watcher{
		streams:  streams,
		journal:  journal.Nop{},
		recorder: metrics.NoopRecorder{},
	}
}

// SetJournal injects a change-event journal (optional).
func (w *Watcher) SetJournal(j journal.Store) {
	if j == nil {
		j = journal.Nop{}
	}
	w.journal = j
}

// SetRecorder injects a metrics recorder (optional).
func (w *Watcher) SetRecorder(r metrics.Recorder) {
	if r == nil {
		r = metrics.NoopRecorder{}
	}
	w.recorder = r
}

// Watch blocks until changeID reaches a terminal state and returns that
// outcome. It resolves at most once: a spurious second terminal event is
// never observed because the subscription ends at the first one. opts.Detach
// is guaranteed to run on every exit path.
func (w *Watcher) Watch(ctx context.Context, changeID string, opts Options) error {
	var detachOnce sync.Once
	detach := func() {
		if opts.Detach != nil {
			detachOnce.Do(opts.Detach)
		}
	}
	defer detach()

	w.recorder.SetActiveWatches(int(w.active.Add(1)))
	defer func() {
		w.recorder.SetActiveWatches(int(w.active.Add(-1)))
	}()

	ctx = observability.WithChangeID(ctx, changeID)
	updates, err := w.streams.Stream(ctx, changeID)
	if err != nil {
		return err
	}

	observability.DebugContext(ctx, "Watching change")

	for {
		select {
		case <-ctx.Done():
			observability.DebugContext(ctx, "Change watch canceled")
			return ctx.Err()

		case update, ok := <-updates:
			if !ok {
				return &pakd.DaemonError{Verb: "watch", Message: "change stream ended before terminal event"}
			}

			w.recorder.IncChangeEvent(update.Terminal())
			if err := w.journal.Append(ctx, update); err != nil {
				observability.WarnContext(ctx, "Failed to journal change event", logfields.Error(err))
			}

			if update.Err != "" {
				observability.InfoContext(ctx, "Change failed", logfields.Error(&pakd.ChangeFailedError{ChangeID: changeID, Reason: update.Err}))
				return &pakd.ChangeFailedError{ChangeID: changeID, Reason: update.Err}
			}
			if !update.Ready {
				continue
			}

			observability.DebugContext(ctx, "Change completed")
			// Clear the active change id before any rebuild so the rebuilt
			// record does not resurrect a finished change.
			detach()
			if opts.RebuildOnSuccess && opts.Rebuild != nil {
				if err := opts.Rebuild(ctx); err != nil {
					return err
				}
			}
			return nil
		}
	}
}
