// Package controller executes package operations against the daemon and
// keeps the store's records consistent while changes run.
package controller

import (
	"context"
	stdErrors "errors"
	"fmt"
	"time"

	"git.home.luguber.info/inful/pakctl/internal/logfields"
	"git.home.luguber.info/inful/pakctl/internal/metrics"
	"git.home.luguber.info/inful/pakctl/internal/observability"
	"git.home.luguber.info/inful/pakctl/internal/pakd"
	"git.home.luguber.info/inful/pakctl/internal/store"
	"git.home.luguber.info/inful/pakctl/internal/view"
	"git.home.luguber.info/inful/pakctl/internal/watch"
)

// Operation verbs, used in errors, logs and metric labels.
const (
	OpInstall = "install"
	OpRefresh = "refresh"
	OpRemove  = "remove"
	OpCancel  = "cancel"
	OpSwitch  = "switch"
)

// PreconditionError reports an operation rejected before any daemon call.
type PreconditionError struct {
	Op      string
	Package string
	Reason  string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Op, e.Package, e.Reason)
}

// IsPrecondition reports whether err is a rejected-operation error.
func IsPrecondition(err error) bool {
	var pe *PreconditionError
	return stdErrors.As(err, &pe)
}

// Controller runs install, refresh, remove, cancel and switch against the
// daemon. At most one mutating operation runs per package at a time; the
// store's reservation and active change id enforce that.
type Controller struct {
	client   pakd.Client
	store    *store.Store
	watcher  *watch.Watcher
	view     view.View
	recorder metrics.Recorder
}

// New creates a controller. The view may be nil when no listing is served.
func New(client pakd.Client, st *store.Store, watcher *watch.Watcher, v view.View) *Controller {
	return &Controller{
		client:   client,
		store:    st,
		watcher:  watcher,
		view:     v,
		recorder: metrics.NoopRecorder{},
	}
}

// SetRecorder injects a metrics recorder (optional).
func (c *Controller) SetRecorder(r metrics.Recorder) {
	if r == nil {
		r = metrics.NoopRecorder{}
	}
	c.recorder = r
}

// Install installs the package on its selected channel and blocks until
// the daemon's change resolves.
func (c *Controller) Install(ctx context.Context, name string) error {
	return c.mutate(ctx, OpInstall, name, func(rec store.PackageRecord) (startFunc, error) {
		if rec.Installed() {
			return nil, &PreconditionError{Op: OpInstall, Package: name, Reason: "already installed"}
		}
		channel, classic, err := c.resolveChannel(OpInstall, rec)
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context) (string, error) {
			return c.client.Install(ctx, name, channel, classic)
		}, nil
	})
}

// Refresh updates the installed package to the selected channel's current
// revision and blocks until the change resolves.
func (c *Controller) Refresh(ctx context.Context, name string) error {
	return c.mutate(ctx, OpRefresh, name, func(rec store.PackageRecord) (startFunc, error) {
		if !rec.Installed() {
			return nil, &PreconditionError{Op: OpRefresh, Package: name, Reason: "not installed"}
		}
		channel, classic, err := c.resolveChannel(OpRefresh, rec)
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context) (string, error) {
			return c.client.Refresh(ctx, name, channel, classic)
		}, nil
	})
}

// Remove uninstalls the package and blocks until the change resolves. The
// record only has to be loaded; whether it is currently installed is the
// daemon's call. The installed listing is invalidated only when the remove
// succeeds; a failed remove leaves the package installed and the listing
// accurate.
func (c *Controller) Remove(ctx context.Context, name string) error {
	err := c.mutate(ctx, OpRemove, name, func(store.PackageRecord) (startFunc, error) {
		return func(ctx context.Context) (string, error) {
			return c.client.Remove(ctx, name)
		}, nil
	})
	if err == nil && c.view != nil {
		c.view.Invalidate()
	}
	return err
}

// Cancel aborts the package's in-flight change, if any. Without one it is
// a no-op and the daemon is never contacted. The abort itself is a change;
// Cancel tracks it on the record and waits for it to resolve.
func (c *Controller) Cancel(ctx context.Context, name string) error {
	ctx = observability.WithOperation(observability.WithPackage(ctx, name), OpCancel)

	rec, err := c.readyRecord(OpCancel, name)
	if err != nil {
		c.recorder.IncOperationOutcome(OpCancel, metrics.OutcomeRejected)
		return err
	}
	if !rec.HasCatalog() {
		c.recorder.IncOperationOutcome(OpCancel, metrics.OutcomeRejected)
		return &PreconditionError{Op: OpCancel, Package: name, Reason: "catalog data not loaded"}
	}
	if rec.ActiveChangeID == "" {
		observability.DebugContext(ctx, "no change in flight, nothing to cancel")
		c.recorder.IncOperationOutcome(OpCancel, metrics.OutcomeSuccess)
		return nil
	}

	started := time.Now()
	abortID, err := c.client.Abort(ctx, rec.ActiveChangeID)
	if err != nil {
		c.finishOp(OpCancel, started, err)
		return err
	}

	// The abort change supersedes the original: the original watcher's
	// detach no longer matches and cannot clear the abort's id.
	c.store.SetActiveChange(name, abortID)

	ctx = observability.WithChangeID(ctx, abortID)
	observability.InfoContext(ctx, "aborting change", logfields.ChangeID(rec.ActiveChangeID))

	err = c.watcher.Watch(ctx, abortID, watch.Options{
		Detach: func() { c.store.ClearActiveChange(name, abortID) },
	})
	c.finishOp(OpCancel, started, err)
	return err
}

// SelectChannel changes the channel used by later install and refresh
// operations. It is local bookkeeping; no change is spawned.
func (c *Controller) SelectChannel(ctx context.Context, name, channel string) error {
	rec, err := c.readyRecord(OpSwitch, name)
	if err != nil {
		c.recorder.IncOperationOutcome(OpSwitch, metrics.OutcomeRejected)
		return err
	}
	if !rec.HasCatalog() {
		c.recorder.IncOperationOutcome(OpSwitch, metrics.OutcomeRejected)
		return &PreconditionError{Op: OpSwitch, Package: name, Reason: "catalog data not loaded"}
	}
	if _, ok := rec.Channel(channel); !ok {
		c.recorder.IncOperationOutcome(OpSwitch, metrics.OutcomeRejected)
		return &PreconditionError{Op: OpSwitch, Package: name,
			Reason: fmt.Sprintf("unknown channel %q", channel)}
	}

	c.store.SetChannel(name, channel)
	c.recorder.IncOperationOutcome(OpSwitch, metrics.OutcomeSuccess)
	observability.InfoContext(ctx, "selected channel",
		logfields.Package(name), logfields.Channel(channel))
	return nil
}

// startFunc asks the daemon to spawn a change and returns its id.
type startFunc func(ctx context.Context) (string, error)

// mutate runs the shared lifecycle of install, refresh and remove:
// precondition checks, the store reservation, the daemon call, and the
// watch until the change resolves.
func (c *Controller) mutate(ctx context.Context, op, name string, prepare func(store.PackageRecord) (startFunc, error)) error {
	ctx = observability.WithOperation(observability.WithPackage(ctx, name), op)

	rec, err := c.readyRecord(op, name)
	if err != nil {
		c.recorder.IncOperationOutcome(op, metrics.OutcomeRejected)
		return err
	}
	start, err := prepare(rec)
	if err != nil {
		c.recorder.IncOperationOutcome(op, metrics.OutcomeRejected)
		return err
	}

	if err := c.store.BeginOperation(name); err != nil {
		c.recorder.IncOperationOutcome(op, metrics.OutcomeRejected)
		if stdErrors.Is(err, store.ErrOperationInFlight) {
			return &PreconditionError{Op: op, Package: name, Reason: "another operation is in flight"}
		}
		return err
	}
	defer c.store.FinishOperation(name)

	started := time.Now()
	changeID, err := start(ctx)
	if err != nil {
		c.finishOp(op, started, err)
		return err
	}

	c.store.SetActiveChange(name, changeID)
	ctx = observability.WithChangeID(ctx, changeID)
	observability.InfoContext(ctx, "change spawned")

	err = c.watcher.Watch(ctx, changeID, watch.Options{
		Detach:           func() { c.store.ClearActiveChange(name, changeID) },
		RebuildOnSuccess: true,
		Rebuild: func(ctx context.Context) error {
			return c.store.Rebuild(ctx, name)
		},
	})
	c.finishOp(op, started, err)
	return err
}

// readyRecord fetches the package's record, rejecting operations on
// packages that are not tracked or whose build failed.
func (c *Controller) readyRecord(op, name string) (store.PackageRecord, error) {
	st, ok := c.store.State(name)
	if !ok {
		return store.PackageRecord{}, &PreconditionError{Op: op, Package: name, Reason: "package not tracked"}
	}
	switch st.Phase {
	case store.PhaseReady:
		return st.Record, nil
	case store.PhaseLoading:
		return store.PackageRecord{}, &PreconditionError{Op: op, Package: name, Reason: "package data still loading"}
	default:
		return store.PackageRecord{}, &PreconditionError{Op: op, Package: name,
			Reason: fmt.Sprintf("package data failed to load: %v", st.Err)}
	}
}

// resolveChannel maps the record's selected channel to a catalog channel
// and derives confinement. Classic confinement needs the explicit flag on
// the daemon call.
func (c *Controller) resolveChannel(op string, rec store.PackageRecord) (string, bool, error) {
	if !rec.HasCatalog() {
		return "", false, &PreconditionError{Op: op, Package: rec.Name, Reason: "catalog data not loaded"}
	}
	if rec.SelectedChannel == "" {
		return "", false, &PreconditionError{Op: op, Package: rec.Name, Reason: "no channel selected"}
	}
	ch, ok := rec.Channel(rec.SelectedChannel)
	if !ok {
		return "", false, &PreconditionError{Op: op, Package: rec.Name,
			Reason: fmt.Sprintf("selected channel %q not in catalog", rec.SelectedChannel)}
	}
	return rec.SelectedChannel, ch.Confinement == pakd.ConfinementClassic, nil
}

func (c *Controller) finishOp(op string, started time.Time, err error) {
	c.recorder.ObserveOperationDuration(op, time.Since(started))
	c.recorder.IncOperationOutcome(op, outcomeOf(err))
}

func outcomeOf(err error) metrics.OutcomeLabel {
	switch {
	case err == nil:
		return metrics.OutcomeSuccess
	case IsPrecondition(err):
		return metrics.OutcomeRejected
	case stdErrors.Is(err, context.Canceled):
		return metrics.OutcomeCanceled
	default:
		return metrics.OutcomeFailed
	}
}
