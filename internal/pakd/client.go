package pakd

import (
	"context"

	"git.home.luguber.info/inful/pakctl/internal/foundation"
)

// Client is the daemon surface the controller consumes. Implementations are
// handed in at construction; nothing in this module locates a daemon
// ambiently.
//
// LocalInfo returns a discriminated Lookup because "not installed" is a valid
// state, not an error. Everything else reports failure through plain errors,
// using the taxonomy in errors.go.
type Client interface {
	// LocalInfo fetches installed metadata for name.
	LocalInfo(ctx context.Context, name string) foundation.Lookup[LocalInfo]

	// CatalogInfo fetches remote catalog metadata for name. A package the
	// catalog does not know yields a NotFoundError.
	CatalogInfo(ctx context.Context, name string) (CatalogInfo, error)

	// Changes lists the daemon's changes touching name, oldest first.
	Changes(ctx context.Context, name string) ([]ChangeSummary, error)

	// Install asks the daemon to install name from channel and returns the
	// id of the change executing it.
	Install(ctx context.Context, name, channel string, classic bool) (string, error)

	// Refresh asks the daemon to refresh name to channel and returns the
	// change id.
	Refresh(ctx context.Context, name, channel string, classic bool) (string, error)

	// Remove asks the daemon to remove name and returns the change id.
	Remove(ctx context.Context, name string) (string, error)

	// Abort asks the daemon to abort a change and returns the id of the
	// abort change that undoes it.
	Abort(ctx context.Context, changeID string) (string, error)

	// Installed lists all installed packages. Serves the aggregate
	// installed-packages view.
	Installed(ctx context.Context) ([]LocalInfo, error)
}

// ChangeStreamer delivers a change's event stream. The returned channel
// closes after the terminal update has been delivered, or when ctx is
// canceled; cancellation releases the underlying subscription without
// touching the change itself.
type ChangeStreamer interface {
	Stream(ctx context.Context, changeID string) (<-chan ChangeUpdate, error)
}
