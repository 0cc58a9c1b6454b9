package pakd

import (
	"context"
	"fmt"
	"sync"

	"git.home.luguber.info/inful/pakctl/internal/foundation"
)

// FakeClient is an in-memory, scriptable daemon used by tests across the
// module. It implements Client and ChangeStreamer; change streams are fed
// by the test through PushUpdate/EndStream.
type FakeClient struct {
	mu sync.Mutex

	// Scripted state, keyed by package name.
	Locals      map[string]LocalInfo
	LocalErrs   map[string]error
	Catalogs    map[string]CatalogInfo
	CatalogErrs map[string]error
	ChangeLists map[string][]ChangeSummary

	// Calls records every mutating and lookup verb in order, for no-op
	// assertions.
	Calls []string

	nextChange int
	streams    map[string]chan ChangeUpdate
}

var _ Client = (*FakeClient)(nil)
var _ ChangeStreamer = (*FakeClient)(nil)

// NewFakeClient creates an empty fake daemon.
func NewFakeClient() *FakeClient {
	return &FakeClient{
		Locals:      make(map[string]LocalInfo),
		LocalErrs:   make(map[string]error),
		Catalogs:    make(map[string]CatalogInfo),
		CatalogErrs: make(map[string]error),
		ChangeLists: make(map[string][]ChangeSummary),
		nextChange:  41,
		streams:     make(map[string]chan ChangeUpdate),
	}
}

func (f *FakeClient) record(call string) {
	f.Calls = append(f.Calls, call)
}

// CallsMade returns a copy of the recorded verb log.
func (f *FakeClient) CallsMade() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.Calls))
	copy(out, f.Calls)
	return out
}

// LocalInfo implements Client.
func (f *FakeClient) LocalInfo(_ context.Context, name string) foundation.Lookup[LocalInfo] {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("local-info " + name)
	if err, ok := f.LocalErrs[name]; ok {
		return foundation.LookupErr[LocalInfo](err)
	}
	if info, ok := f.Locals[name]; ok {
		return foundation.Found(info)
	}
	return foundation.NotFound[LocalInfo]()
}

// CatalogInfo implements Client.
func (f *FakeClient) CatalogInfo(_ context.Context, name string) (CatalogInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("catalog-info " + name)
	if err, ok := f.CatalogErrs[name]; ok {
		return CatalogInfo{}, err
	}
	if info, ok := f.Catalogs[name]; ok {
		return info, nil
	}
	return CatalogInfo{}, &NotFoundError{Name: name}
}

// Changes implements Client.
func (f *FakeClient) Changes(_ context.Context, name string) ([]ChangeSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("changes " + name)
	return f.ChangeLists[name], nil
}

func (f *FakeClient) newChange(verb, name string) string {
	f.nextChange++
	id := fmt.Sprintf("%d", f.nextChange)
	f.record(fmt.Sprintf("%s %s -> %s", verb, name, id))
	return id
}

// Install implements Client.
func (f *FakeClient) Install(_ context.Context, name, channel string, classic bool) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.newChange("install", fmt.Sprintf("%s channel=%s classic=%t", name, channel, classic)), nil
}

// Refresh implements Client.
func (f *FakeClient) Refresh(_ context.Context, name, channel string, classic bool) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.newChange("refresh", fmt.Sprintf("%s channel=%s classic=%t", name, channel, classic)), nil
}

// Remove implements Client.
func (f *FakeClient) Remove(_ context.Context, name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.newChange("remove", name), nil
}

// Abort implements Client.
func (f *FakeClient) Abort(_ context.Context, changeID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.newChange("abort", changeID), nil
}

// Installed implements Client.
func (f *FakeClient) Installed(_ context.Context) ([]LocalInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("installed")
	out := make([]LocalInfo, 0, len(f.Locals))
	for _, info := range f.Locals {
		out = append(out, info)
	}
	return out, nil
}

// Stream implements ChangeStreamer. Like the real transports, the returned
// channel closes after a terminal update, when the test calls EndStream, or
// when ctx is canceled. Tests feed the stream with PushUpdate.
func (f *FakeClient) Stream(ctx context.Context, changeID string) (<-chan ChangeUpdate, error) {
	f.mu.Lock()
	f.record("watch " + changeID)
	pushed := f.stream(changeID)
	f.mu.Unlock()

	out := make(chan ChangeUpdate)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case update, ok := <-pushed:
				if !ok {
					return
				}
				select {
				case out <- update:
				case <-ctx.Done():
					return
				}
				if update.Terminal() {
					return
				}
			}
		}
	}()
	return out, nil
}

func (f *FakeClient) stream(changeID string) chan ChangeUpdate {
	ch, ok := f.streams[changeID]
	if !ok {
		ch = make(chan ChangeUpdate, 16)
		f.streams[changeID] = ch
	}
	return ch
}

// PushUpdate delivers one event on a change's stream.
func (f *FakeClient) PushUpdate(changeID string, update ChangeUpdate) {
	f.mu.Lock()
	ch := f.stream(changeID)
	f.mu.Unlock()
	if update.ID == "" {
		update.ID = changeID
	}
	ch <- update
}

// EndStream closes a change's stream without a terminal event, simulating a
// dropped subscription.
func (f *FakeClient) EndStream(changeID string) {
	f.mu.Lock()
	ch := f.stream(changeID)
	f.mu.Unlock()
	close(ch)
}

// NextChangeID returns the id the next spawned change will get.
func (f *FakeClient) NextChangeID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return fmt.Sprintf("%d", f.nextChange+1)
}
