package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/pakctl/internal/pakd"
	"git.home.luguber.info/inful/pakctl/internal/watch"
)

type stubChecker struct{ result bool }

func (s stubChecker) HasUpdate(pakd.LocalInfo, pakd.CatalogInfo) bool { return s.result }

func newTestStore(fake *pakd.FakeClient, defaultChannel string) *Store {
	return New(fake, watch.New(fake), stubChecker{}, defaultChannel)
}

func catalogWith(channels ...string) pakd.CatalogInfo {
	info := pakd.CatalogInfo{Channels: make(map[string]pakd.Channel)}
	for i, name := range channels {
		if i == 0 {
			info.DefaultChannel = name
		}
		info.Channels[name] = pakd.Channel{Name: name, Revision: "10"}
	}
	return info
}

func TestAcquireBuildsInstalledRecord(t *testing.T) {
	fake := pakd.NewFakeClient()
	fake.Locals["vim"] = pakd.LocalInfo{Name: "vim", Revision: "9", TrackingChannel: "stable"}
	fake.Catalogs["vim"] = catalogWith("stable", "edge")

	s := newTestStore(fake, "")
	st := s.Acquire(context.Background(), "vim")

	require.Equal(t, PhaseReady, st.Phase)
	assert.True(t, st.Record.Installed())
	assert.True(t, st.Record.HasCatalog())
	assert.Equal(t, "stable", st.Record.SelectedChannel)
	assert.Empty(t, st.Record.ActiveChangeID)
}

func TestAcquireCatalogOnlyRecord(t *testing.T) {
	fake := pakd.NewFakeClient()
	fake.Catalogs["htop"] = catalogWith("stable")

	s := newTestStore(fake, "")
	st := s.Acquire(context.Background(), "htop")

	require.Equal(t, PhaseReady, st.Phase)
	assert.False(t, st.Record.Installed())
	assert.Equal(t, "stable", st.Record.SelectedChannel)
}

func TestAcquireUnknownPackageFails(t *testing.T) {
	fake := pakd.NewFakeClient()

	s := newTestStore(fake, "")
	st := s.Acquire(context.Background(), "no-such")

	require.Equal(t, PhaseFailed, st.Phase)
	var nf *pakd.NotFoundError
	require.ErrorAs(t, st.Err, &nf)
	assert.Equal(t, "no-such", nf.Name)
}

func TestAcquireDegradesWhenCatalogUnreachable(t *testing.T) {
	fake := pakd.NewFakeClient()
	fake.Locals["vim"] = pakd.LocalInfo{Name: "vim", Revision: "9"}
	fake.CatalogErrs["vim"] = &pakd.DaemonError{Verb: "catalog-info", Message: "store timeout"}

	s := newTestStore(fake, "")
	st := s.Acquire(context.Background(), "vim")

	require.Equal(t, PhaseReady, st.Phase)
	assert.True(t, st.Record.Installed())
	assert.False(t, st.Record.HasCatalog())
	assert.Empty(t, st.Record.SelectedChannel)
}

func TestAcquireFailsWhenCatalogUnreachableAndNotInstalled(t *testing.T) {
	fake := pakd.NewFakeClient()
	daemonErr := &pakd.DaemonError{Verb: "catalog-info", Message: "store timeout"}
	fake.CatalogErrs["htop"] = daemonErr

	s := newTestStore(fake, "")
	st := s.Acquire(context.Background(), "htop")

	require.Equal(t, PhaseFailed, st.Phase)
	assert.ErrorIs(t, st.Err, daemonErr)
}

func TestSelectedChannelFallsBackToConfiguredDefault(t *testing.T) {
	fake := pakd.NewFakeClient()
	fake.Catalogs["htop"] = catalogWith("stable", "candidate")

	s := newTestStore(fake, "candidate")
	st := s.Acquire(context.Background(), "htop")

	require.Equal(t, PhaseReady, st.Phase)
	assert.Equal(t, "candidate", st.Record.SelectedChannel)
}

func TestSelectedChannelIgnoresTrackedChannelGoneFromCatalog(t *testing.T) {
	fake := pakd.NewFakeClient()
	fake.Locals["vim"] = pakd.LocalInfo{Name: "vim", TrackingChannel: "retired"}
	fake.Catalogs["vim"] = catalogWith("stable")

	s := newTestStore(fake, "")
	st := s.Acquire(context.Background(), "vim")

	require.Equal(t, PhaseReady, st.Phase)
	assert.Equal(t, "stable", st.Record.SelectedChannel)
}

func TestHasUpdateRecomputedOnRebuild(t *testing.T) {
	fake := pakd.NewFakeClient()
	fake.Locals["vim"] = pakd.LocalInfo{Name: "vim", Revision: "9"}
	fake.Catalogs["vim"] = catalogWith("stable")

	checker := &stubChecker{result: true}
	s := New(fake, watch.New(fake), checker, "")

	st := s.Acquire(context.Background(), "vim")
	require.Equal(t, PhaseReady, st.Phase)
	assert.True(t, st.Record.HasUpdate)

	checker.result = false
	require.NoError(t, s.Rebuild(context.Background(), "vim"))
	st, ok := s.State("vim")
	require.True(t, ok)
	assert.False(t, st.Record.HasUpdate)
}

func TestAcquireResumesPendingChange(t *testing.T) {
	fake := pakd.NewFakeClient()
	fake.Locals["vim"] = pakd.LocalInfo{Name: "vim", Revision: "9"}
	fake.Catalogs["vim"] = catalogWith("stable")
	fake.ChangeLists["vim"] = []pakd.ChangeSummary{
		{ID: "11", Kind: "refresh", Ready: true},
		{ID: "12", Kind: "refresh", Ready: false},
	}

	s := newTestStore(fake, "")
	st := s.Acquire(context.Background(), "vim")

	require.Equal(t, PhaseReady, st.Phase)
	assert.Equal(t, "12", st.Record.ActiveChangeID)

	updates, unsubscribe := s.Subscribe("vim")
	defer unsubscribe()

	// The change finishes; the resumed watcher clears the id and rebuilds.
	fake.ChangeLists["vim"] = []pakd.ChangeSummary{
		{ID: "11", Kind: "refresh", Ready: true},
		{ID: "12", Kind: "refresh", Ready: true},
	}
	fake.PushUpdate("12", pakd.ChangeUpdate{Ready: true})

	deadline := time.After(2 * time.Second)
	for {
		select {
		case st := <-updates:
			if st.Phase == PhaseReady && st.Record.ActiveChangeID == "" {
				return
			}
		case <-deadline:
			t.Fatal("active change id never cleared")
		}
	}
}

func TestRebuildDoesNotReattachWatchedChange(t *testing.T) {
	fake := pakd.NewFakeClient()
	fake.Locals["vim"] = pakd.LocalInfo{Name: "vim"}
	fake.Catalogs["vim"] = catalogWith("stable")
	fake.ChangeLists["vim"] = []pakd.ChangeSummary{{ID: "12", Ready: false}}

	s := newTestStore(fake, "")
	s.Acquire(context.Background(), "vim")

	countWatches := func() int {
		n := 0
		for _, call := range fake.CallsMade() {
			if call == "watch 12" {
				n++
			}
		}
		return n
	}
	require.Eventually(t, func() bool { return countWatches() == 1 },
		2*time.Second, 10*time.Millisecond, "resumed change was never watched")

	require.NoError(t, s.Rebuild(context.Background(), "vim"))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, countWatches(), "a pending change must be watched exactly once")
}

func TestReleaseDropsEntry(t *testing.T) {
	fake := pakd.NewFakeClient()
	fake.Catalogs["htop"] = catalogWith("stable")

	s := newTestStore(fake, "")
	s.Acquire(context.Background(), "htop")
	s.Acquire(context.Background(), "htop")

	s.Release("htop")
	_, ok := s.State("htop")
	assert.True(t, ok, "entry must survive while references remain")

	s.Release("htop")
	_, ok = s.State("htop")
	assert.False(t, ok, "entry must drop at zero references")
}

func TestBeginOperationGuards(t *testing.T) {
	fake := pakd.NewFakeClient()
	fake.Catalogs["htop"] = catalogWith("stable")

	s := newTestStore(fake, "")
	s.Acquire(context.Background(), "htop")

	require.NoError(t, s.BeginOperation("htop"))
	assert.ErrorIs(t, s.BeginOperation("htop"), ErrOperationInFlight)

	s.FinishOperation("htop")
	require.NoError(t, s.BeginOperation("htop"))
	s.FinishOperation("htop")

	// An in-flight change blocks operations even without a reservation.
	s.SetActiveChange("htop", "42")
	assert.ErrorIs(t, s.BeginOperation("htop"), ErrOperationInFlight)
}

func TestClearActiveChangeRequiresMatchingID(t *testing.T) {
	fake := pakd.NewFakeClient()
	fake.Catalogs["htop"] = catalogWith("stable")

	s := newTestStore(fake, "")
	s.Acquire(context.Background(), "htop")

	s.SetActiveChange("htop", "42")
	s.SetActiveChange("htop", "43") // abort superseded the original change

	s.ClearActiveChange("htop", "42")
	st, _ := s.State("htop")
	assert.Equal(t, "43", st.Record.ActiveChangeID, "stale watcher must not clear a newer change")

	s.ClearActiveChange("htop", "43")
	st, _ = s.State("htop")
	assert.Empty(t, st.Record.ActiveChangeID)
}

func TestSubscribePublishesTransitions(t *testing.T) {
	fake := pakd.NewFakeClient()
	fake.Catalogs["htop"] = catalogWith("stable")

	s := newTestStore(fake, "")
	s.Acquire(context.Background(), "htop")

	updates, unsubscribe := s.Subscribe("htop")
	defer unsubscribe()

	s.SetChannel("htop", "edge")
	select {
	case st := <-updates:
		require.Equal(t, PhaseReady, st.Phase)
		assert.Equal(t, "edge", st.Record.SelectedChannel)
	case <-time.After(2 * time.Second):
		t.Fatal("no snapshot published")
	}
}

func TestUnsubscribeDuringPublishDoesNotPanic(t *testing.T) {
	fake := pakd.NewFakeClient()
	fake.Catalogs["htop"] = catalogWith("stable", "edge")

	s := newTestStore(fake, "")
	s.Acquire(context.Background(), "htop")

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				s.SetChannel("htop", "edge")
			}
		}
	}()

	// Subscribers coming and going while snapshots are being published must
	// never see a send race their channel's close.
	for i := 0; i < 200; i++ {
		updates, unsubscribe := s.Subscribe("htop")
		select {
		case <-updates:
		default:
		}
		unsubscribe()
	}

	close(stop)
	wg.Wait()
}
