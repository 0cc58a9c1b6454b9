// Package journal records the change events this client has observed, so
// the CLI can show what happened to a change after the fact. The journal is
// in-memory by default (":memory:"); nothing in this module requires state
// to outlive the process.
package journal

import (
	"context"
	"time"

	"git.home.luguber.info/inful/pakctl/internal/pakd"
)

// Event is one observed change update, as stored.
type Event struct {
	ID        int64
	ChangeID  string
	Ready     bool
	Error     string
	Tasks     []pakd.Task
	Timestamp time.Time
}

// Store persists observed change events.
type Store interface {
	// Append records one update observed on a change's stream.
	Append(ctx context.Context, update pakd.ChangeUpdate) error

	// ByChange retrieves all recorded events for a change, oldest first.
	ByChange(ctx context.Context, changeID string) ([]Event, error)

	// Close releases the underlying storage.
	Close() error
}

// Nop is a Store that records nothing, for wiring paths that do not keep a
// journal.
type Nop struct{}

func (Nop) Append(context.Context, pakd.ChangeUpdate) error   { return nil }
func (Nop) ByChange(context.Context, string) ([]Event, error) { return nil, nil }
func (Nop) Close() error                                      { return nil }
