package controller

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/pakctl/internal/metrics"
	"git.home.luguber.info/inful/pakctl/internal/pakd"
	"git.home.luguber.info/inful/pakctl/internal/store"
	"git.home.luguber.info/inful/pakctl/internal/updates"
	"git.home.luguber.info/inful/pakctl/internal/watch"
)

type spyView struct {
	invalidations int
}

func (v *spyView) Installed(context.Context) ([]pakd.LocalInfo, error) { return nil, nil }
func (v *spyView) Invalidate()                                         { v.invalidations++ }

type spyRecorder struct {
	metrics.NoopRecorder
	mu       sync.Mutex
	outcomes map[string]int
}

func (r *spyRecorder) IncOperationOutcome(verb string, outcome metrics.OutcomeLabel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.outcomes == nil {
		r.outcomes = make(map[string]int)
	}
	r.outcomes[verb+"/"+string(outcome)]++
}

func (r *spyRecorder) count(verb string, outcome metrics.OutcomeLabel) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.outcomes[verb+"/"+string(outcome)]
}

type fixture struct {
	fake  *pakd.FakeClient
	store *store.Store
	ctrl  *Controller
	view  *spyView
}

func newFixture() *fixture {
	fake := pakd.NewFakeClient()
	watcher := watch.New(fake)
	st := store.New(fake, watcher, updates.NewChecker(), "")
	v := &spyView{}
	return &fixture{
		fake:  fake,
		store: st,
		ctrl:  New(fake, st, watcher, v),
		view:  v,
	}
}

func stableCatalog(confinement pakd.Confinement) pakd.CatalogInfo {
	return pakd.CatalogInfo{
		DefaultChannel: "stable",
		Channels: map[string]pakd.Channel{
			"stable": {Name: "stable", Revision: "12", Confinement: confinement},
		},
	}
}

func waitDone(t *testing.T, done chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("operation did not resolve")
		return nil
	}
}

func waitActiveChange(t *testing.T, f *fixture, name, want string) {
	t.Helper()
	require.Eventually(t, func() bool {
		st, ok := f.store.State(name)
		return ok && st.Phase == store.PhaseReady && st.Record.ActiveChangeID == want
	}, 2*time.Second, 5*time.Millisecond, "active change never became %q", want)
}

func hasCall(f *fixture, substr string) bool {
	for _, call := range f.fake.CallsMade() {
		if strings.Contains(call, substr) {
			return true
		}
	}
	return false
}

func TestInstallHappyPath(t *testing.T) {
	f := newFixture()
	f.fake.Catalogs["htop"] = stableCatalog(pakd.ConfinementStrict)

	st := f.store.Acquire(context.Background(), "htop")
	require.Equal(t, store.PhaseReady, st.Phase)
	require.False(t, st.Record.Installed())

	done := make(chan error, 1)
	go func() { done <- f.ctrl.Install(context.Background(), "htop") }()

	waitActiveChange(t, f, "htop", "42")
	f.fake.PushUpdate("42", pakd.ChangeUpdate{Tasks: []pakd.Task{{Done: 1, Total: 2}}})

	// The daemon finishes the change; the rebuilt record sees it installed.
	f.fake.Locals["htop"] = pakd.LocalInfo{Name: "htop", Revision: "12", TrackingChannel: "stable"}
	f.fake.PushUpdate("42", pakd.ChangeUpdate{Ready: true})

	require.NoError(t, waitDone(t, done))

	final, ok := f.store.State("htop")
	require.True(t, ok)
	assert.True(t, final.Record.Installed())
	assert.Empty(t, final.Record.ActiveChangeID)
	assert.True(t, hasCall(f, "install htop channel=stable classic=false"))
}

func TestInstallDerivesClassicFromChannel(t *testing.T) {
	f := newFixture()
	f.fake.Catalogs["code"] = stableCatalog(pakd.ConfinementClassic)
	f.store.Acquire(context.Background(), "code")

	done := make(chan error, 1)
	go func() { done <- f.ctrl.Install(context.Background(), "code") }()

	waitActiveChange(t, f, "code", "42")
	f.fake.PushUpdate("42", pakd.ChangeUpdate{Ready: true})
	require.NoError(t, waitDone(t, done))

	assert.True(t, hasCall(f, "install code channel=stable classic=true"))
}

func TestInstallRejectsAlreadyInstalled(t *testing.T) {
	f := newFixture()
	f.fake.Locals["vim"] = pakd.LocalInfo{Name: "vim", TrackingChannel: "stable"}
	f.fake.Catalogs["vim"] = stableCatalog(pakd.ConfinementStrict)
	f.store.Acquire(context.Background(), "vim")

	err := f.ctrl.Install(context.Background(), "vim")
	require.True(t, IsPrecondition(err))
	assert.False(t, hasCall(f, "install vim"), "rejected operation must not reach the daemon")
}

func TestRefreshRejectsNotInstalled(t *testing.T) {
	f := newFixture()
	f.fake.Catalogs["htop"] = stableCatalog(pakd.ConfinementStrict)
	f.store.Acquire(context.Background(), "htop")

	err := f.ctrl.Refresh(context.Background(), "htop")
	require.True(t, IsPrecondition(err))
}

func TestSecondOperationRejectedWhileInFlight(t *testing.T) {
	f := newFixture()
	f.fake.Catalogs["htop"] = stableCatalog(pakd.ConfinementStrict)
	f.store.Acquire(context.Background(), "htop")

	done := make(chan error, 1)
	go func() { done <- f.ctrl.Install(context.Background(), "htop") }()
	waitActiveChange(t, f, "htop", "42")

	err := f.ctrl.Install(context.Background(), "htop")
	require.True(t, IsPrecondition(err))

	f.fake.PushUpdate("42", pakd.ChangeUpdate{Ready: true})
	waitDone(t, done)
}

func TestRemoveFailureKeepsInstalledView(t *testing.T) {
	f := newFixture()
	f.fake.Locals["vim"] = pakd.LocalInfo{Name: "vim", TrackingChannel: "stable"}
	f.fake.Catalogs["vim"] = stableCatalog(pakd.ConfinementStrict)
	f.store.Acquire(context.Background(), "vim")

	done := make(chan error, 1)
	go func() { done <- f.ctrl.Remove(context.Background(), "vim") }()

	waitActiveChange(t, f, "vim", "42")
	f.fake.PushUpdate("42", pakd.ChangeUpdate{Ready: true, Err: "cannot remove: busy"})

	err := waitDone(t, done)
	require.True(t, pakd.IsChangeFailed(err))

	assert.Zero(t, f.view.invalidations, "failed remove must not invalidate the listing")
	st, _ := f.store.State("vim")
	assert.True(t, st.Record.Installed(), "failed remove leaves the package installed")
	assert.Empty(t, st.Record.ActiveChangeID)
}

func TestRemoveSuccessInvalidatesView(t *testing.T) {
	f := newFixture()
	f.fake.Locals["vim"] = pakd.LocalInfo{Name: "vim", TrackingChannel: "stable"}
	f.fake.Catalogs["vim"] = stableCatalog(pakd.ConfinementStrict)
	f.store.Acquire(context.Background(), "vim")

	done := make(chan error, 1)
	go func() { done <- f.ctrl.Remove(context.Background(), "vim") }()

	waitActiveChange(t, f, "vim", "42")
	delete(f.fake.Locals, "vim")
	f.fake.PushUpdate("42", pakd.ChangeUpdate{Ready: true})

	require.NoError(t, waitDone(t, done))
	assert.Equal(t, 1, f.view.invalidations)

	st, _ := f.store.State("vim")
	assert.False(t, st.Record.Installed())
}

func TestRemoveDoesNotRequireInstalledState(t *testing.T) {
	f := newFixture()
	f.fake.Catalogs["htop"] = stableCatalog(pakd.ConfinementStrict)
	f.store.Acquire(context.Background(), "htop")

	done := make(chan error, 1)
	go func() { done <- f.ctrl.Remove(context.Background(), "htop") }()

	waitActiveChange(t, f, "htop", "42")
	f.fake.PushUpdate("42", pakd.ChangeUpdate{Ready: true})
	require.NoError(t, waitDone(t, done))
	assert.True(t, hasCall(f, "remove htop"))
}

func TestCancelWithoutChangeIsNoOp(t *testing.T) {
	f := newFixture()
	f.fake.Catalogs["htop"] = stableCatalog(pakd.ConfinementStrict)
	f.store.Acquire(context.Background(), "htop")

	rec := &spyRecorder{}
	f.ctrl.SetRecorder(rec)

	require.NoError(t, f.ctrl.Cancel(context.Background(), "htop"))
	assert.False(t, hasCall(f, "abort"), "no-op cancel must not contact the daemon")
	assert.Equal(t, 1, rec.count(OpCancel, metrics.OutcomeSuccess),
		"a no-op cancel still counts as a successful outcome")
}

func TestCancelAbortsInFlightChange(t *testing.T) {
	f := newFixture()
	f.fake.Catalogs["htop"] = stableCatalog(pakd.ConfinementStrict)
	f.store.Acquire(context.Background(), "htop")

	installDone := make(chan error, 1)
	go func() { installDone <- f.ctrl.Install(context.Background(), "htop") }()
	waitActiveChange(t, f, "htop", "42")

	cancelDone := make(chan error, 1)
	go func() { cancelDone <- f.ctrl.Cancel(context.Background(), "htop") }()
	waitActiveChange(t, f, "htop", "43")

	// The daemon fails the aborted change, then resolves the abort itself.
	f.fake.PushUpdate("42", pakd.ChangeUpdate{Ready: true, Err: "aborted"})
	require.True(t, pakd.IsChangeFailed(waitDone(t, installDone)))

	// The install watcher's detach targets change 42 and must not wipe the
	// abort change's id.
	st, _ := f.store.State("htop")
	assert.Equal(t, "43", st.Record.ActiveChangeID)

	f.fake.PushUpdate("43", pakd.ChangeUpdate{Ready: true})
	require.NoError(t, waitDone(t, cancelDone))

	waitActiveChange(t, f, "htop", "")
}

func TestSelectChannel(t *testing.T) {
	f := newFixture()
	catalog := stableCatalog(pakd.ConfinementStrict)
	catalog.Channels["edge"] = pakd.Channel{Name: "edge", Revision: "15"}
	f.fake.Catalogs["htop"] = catalog
	f.store.Acquire(context.Background(), "htop")

	require.NoError(t, f.ctrl.SelectChannel(context.Background(), "htop", "edge"))
	st, _ := f.store.State("htop")
	assert.Equal(t, "edge", st.Record.SelectedChannel)

	err := f.ctrl.SelectChannel(context.Background(), "htop", "nightly")
	require.True(t, IsPrecondition(err))
	st, _ = f.store.State("htop")
	assert.Equal(t, "edge", st.Record.SelectedChannel, "rejected switch must not change the selection")
}

func TestOperationsRejectUntrackedPackage(t *testing.T) {
	f := newFixture()

	assert.True(t, IsPrecondition(f.ctrl.Install(context.Background(), "ghost")))
	assert.True(t, IsPrecondition(f.ctrl.Remove(context.Background(), "ghost")))
	assert.True(t, IsPrecondition(f.ctrl.Cancel(context.Background(), "ghost")))
	assert.True(t, IsPrecondition(f.ctrl.SelectChannel(context.Background(), "ghost", "stable")))
}
