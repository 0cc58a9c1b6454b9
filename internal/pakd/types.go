// Package pakd defines the client surface of the package daemon: the data
// model for packages and changes, the abstract Client interface, and the
// error taxonomy shared by everything built on top of it.
package pakd

import "time"

// Confinement is the isolation mode a channel's build ships with.
type Confinement string

const (
	ConfinementStrict  Confinement = "strict"
	ConfinementClassic Confinement = "classic"
	ConfinementDevmode Confinement = "devmode"
)

// LocalInfo describes the installed state of a package as reported by the daemon.
type LocalInfo struct {
	Name            string      `json:"name"`
	Version         string      `json:"version"`
	Revision        string      `json:"revision"`
	TrackingChannel string      `json:"tracking-channel,omitempty"`
	Confinement     Confinement `json:"confinement,omitempty"`
	InstalledSize   int64       `json:"installed-size,omitempty"`
	InstallDate     time.Time   `json:"install-date,omitzero"`
}

// Channel is a named release track within a package's catalog entry.
type Channel struct {
	Name        string      `json:"name"`
	Version     string      `json:"version"`
	Revision    string      `json:"revision"`
	Confinement Confinement `json:"confinement"`
	ReleasedAt  time.Time   `json:"released-at,omitzero"`
}

// CatalogInfo describes a package as known to the remote catalog.
type CatalogInfo struct {
	Name           string             `json:"name"`
	Publisher      string             `json:"publisher,omitempty"`
	Summary        string             `json:"summary,omitempty"`
	Description    string             `json:"description,omitempty"`
	DefaultChannel string             `json:"default-channel"`
	Channels       map[string]Channel `json:"channels"`
}

// Task is a unit of work within a change, reporting progress counters.
type Task struct {
	Kind    string `json:"kind,omitempty"`
	Summary string `json:"summary,omitempty"`
	Done    int    `json:"done"`
	Total   int    `json:"total"`
}

// ChangeSummary identifies a daemon change and whether it reached a terminal state.
type ChangeSummary struct {
	ID    string `json:"id"`
	Kind  string `json:"kind,omitempty"`
	Ready bool   `json:"ready"`
}

// ChangeUpdate is one event on a change's stream. Once Ready is true the
// change is terminal and the daemon emits nothing further for it.
type ChangeUpdate struct {
	ID    string `json:"id"`
	Ready bool   `json:"ready"`
	Err   string `json:"error,omitempty"`
	Tasks []Task `json:"tasks,omitempty"`
}

// Fraction returns the change's overall progress as done/total summed across
// tasks, or 0 when the totals sum to zero.
func (u ChangeUpdate) Fraction() float64 {
	var done, total int
	for _, t := range u.Tasks {
		done += t.Done
		total += t.Total
	}
	if total == 0 {
		return 0
	}
	return float64(done) / float64(total)
}

// Terminal reports whether this update ends the change, either cleanly or
// with an error.
func (u ChangeUpdate) Terminal() bool {
	return u.Ready || u.Err != ""
}
