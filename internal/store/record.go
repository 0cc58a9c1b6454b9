// Package store owns per-package state: reconciling local and catalog data,
// re-attaching to in-flight changes, and publishing record snapshots.
package store

import (
	"git.home.luguber.info/inful/pakctl/internal/foundation"
	"git.home.luguber.info/inful/pakctl/internal/pakd"
)

// Phase is the lifecycle phase of a package's async value.
type Phase int

const (
	PhaseLoading Phase = iota
	PhaseReady
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseLoading:
		return "loading"
	case PhaseReady:
		return "ready"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// PackageRecord is the reconciled view of one package. A successfully built
// record never has both Local and Catalog absent; that condition fails the
// build with pakd.NotFoundError instead.
type PackageRecord struct {
	Name            string
	Local           foundation.Option[pakd.LocalInfo]
	Catalog         foundation.Option[pakd.CatalogInfo]
	SelectedChannel string
	ActiveChangeID  string // empty when no change is in flight
	HasUpdate       bool
}

// Installed reports whether the package is installed locally.
func (r PackageRecord) Installed() bool {
	return r.Local.IsSome()
}

// HasCatalog reports whether catalog data loaded for this record.
func (r PackageRecord) HasCatalog() bool {
	return r.Catalog.IsSome()
}

// Channel resolves a channel name against the record's catalog data.
func (r PackageRecord) Channel(name string) (pakd.Channel, bool) {
	if r.Catalog.IsNone() {
		return pakd.Channel{}, false
	}
	ch, ok := r.Catalog.Unwrap().Channels[name]
	return ch, ok
}

// State is the async value exposed to collaborators:
// Loading, Value(record), or Error.
type State struct {
	Phase  Phase
	Record PackageRecord // valid when Phase is PhaseReady
	Err    error         // set when Phase is PhaseFailed
}
