// Package view caches the daemon's installed-packages listing.
package view

import (
	"context"
	"sync"

	"git.home.luguber.info/inful/pakctl/internal/observability"
	"git.home.luguber.info/inful/pakctl/internal/pakd"
)

// View is the installed-packages listing consumed by the CLI and
// invalidated by the operation controller after a successful remove.
type View interface {
	Installed(ctx context.Context) ([]pakd.LocalInfo, error)
	Invalidate()
}

// Lister is the slice of the daemon client the view needs.
type Lister interface {
	Installed(ctx context.Context) ([]pakd.LocalInfo, error)
}

// CachedView serves the listing from memory until invalidated.
type CachedView struct {
	client Lister

	mu     sync.Mutex
	cached []pakd.LocalInfo
	valid  bool
}

var _ View = (*CachedView)(nil)

// NewCached creates an empty, invalid cache over the daemon listing.
func NewCached(client Lister) *CachedView {
	return &CachedView{client: client}
}

// Installed returns the cached listing, refetching after invalidation.
func (v *CachedView) Installed(ctx context.Context) ([]pakd.LocalInfo, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.valid {
		return v.cached, nil
	}
	list, err := v.client.Installed(ctx)
	if err != nil {
		return nil, err
	}
	v.cached = list
	v.valid = true
	observability.DebugContext(ctx, "installed view refreshed")
	return list, nil
}

// Invalidate drops the cache; the next Installed call refetches.
func (v *CachedView) Invalidate() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.valid = false
	v.cached = nil
}
