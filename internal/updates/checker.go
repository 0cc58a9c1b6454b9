// Package updates decides update availability and drives the periodic
// recheck of tracked packages.
package updates

import (
	"git.home.luguber.info/inful/pakctl/internal/pakd"
)

// Checker compares an installed package against the channel it tracks.
type Checker struct{}

// NewChecker creates a revision-based update checker.
func NewChecker() *Checker {
	return &Checker{}
}

// HasUpdate reports whether the tracked channel carries a different
// revision than the installed one. Version strings are not ordered, so a
// revision mismatch is the signal; packages without catalog channel data
// never report an update.
func (c *Checker) HasUpdate(local pakd.LocalInfo, catalog pakd.CatalogInfo) bool {
	channel := local.TrackingChannel
	if channel == "" {
		channel = catalog.DefaultChannel
	}
	ch, ok := catalog.Channels[channel]
	if !ok {
		return false
	}
	return ch.Revision != "" && ch.Revision != local.Revision
}
