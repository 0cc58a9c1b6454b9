package store

import (
	"context"

	"git.home.luguber.info/inful/pakctl/internal/foundation"
	"git.home.luguber.info/inful/pakctl/internal/logfields"
	"git.home.luguber.info/inful/pakctl/internal/observability"
	"git.home.luguber.info/inful/pakctl/internal/pakd"
)

// buildRecord assembles a fresh record for one package. The returned
// pending id is the first not-ready change reported by the daemon, or ""
// when nothing is in flight.
//
// A package missing from the local system is a normal state, not an error.
// A package missing from both the local system and the catalog fails the
// build with pakd.NotFoundError.
func (s *Store) buildRecord(ctx context.Context, name string) (PackageRecord, string, error) {
	rec := PackageRecord{Name: name}

	lookup := s.client.LocalInfo(ctx, name)
	if lookup.IsError() {
		return PackageRecord{}, "", lookup.Err()
	}
	rec.Local = lookup.ToOption()

	catalog, err := s.client.CatalogInfo(ctx, name)
	switch {
	case err == nil:
		rec.Catalog = foundation.Some(catalog)
	case pakd.IsNotFound(err):
		// Absent from the catalog; fine as long as it is installed.
	case rec.Local.IsSome():
		// Installed packages stay usable when the catalog is unreachable.
		observability.WarnContext(ctx, "catalog lookup failed, degrading to local data",
			logfields.Error(err))
	default:
		return PackageRecord{}, "", err
	}

	if rec.Local.IsNone() && rec.Catalog.IsNone() {
		return PackageRecord{}, "", &pakd.NotFoundError{Name: name}
	}

	changes, err := s.client.Changes(ctx, name)
	if err != nil {
		return PackageRecord{}, "", err
	}
	var pending string
	for _, c := range changes {
		if !c.Ready {
			pending = c.ID
			break
		}
	}

	rec.SelectedChannel = s.selectChannel(rec)
	rec.HasUpdate = s.hasUpdate(rec)
	return rec, pending, nil
}

// selectChannel picks the record's channel: the locally tracked channel
// when the catalog still carries it, else the configured default channel,
// else the catalog's own default. Without catalog data there is nothing to
// select.
func (s *Store) selectChannel(rec PackageRecord) string {
	if rec.Catalog.IsNone() {
		return ""
	}
	catalog := rec.Catalog.Unwrap()

	if rec.Local.IsSome() {
		if tracked := rec.Local.Unwrap().TrackingChannel; tracked != "" {
			if _, ok := catalog.Channels[tracked]; ok {
				return tracked
			}
		}
	}
	if s.defaultChannel != "" {
		if _, ok := catalog.Channels[s.defaultChannel]; ok {
			return s.defaultChannel
		}
	}
	return catalog.DefaultChannel
}

// hasUpdate is recomputed on every build so a finished refresh clears the
// flag without extra bookkeeping.
func (s *Store) hasUpdate(rec PackageRecord) bool {
	if s.updates == nil || rec.Local.IsNone() || rec.Catalog.IsNone() {
		return false
	}
	return s.updates.HasUpdate(rec.Local.Unwrap(), rec.Catalog.Unwrap())
}
