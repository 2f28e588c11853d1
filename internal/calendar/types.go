// Package calendar bridges local time slots with an external calendar
// provider: import, export, and two-way sync.
package calendar

import (
	"context"
	"time"
)

// Event is a remote calendar event as the provider reports it. Start/End are
// nil when the provider omits them (all-day events and the like).
type Event struct {
	ID      string
	Summary string
	Start   *time.Time
	End     *time.Time
}

// EventSpec describes a remote event to create. Availability events are
// transparent (non-blocking), distinctly colored, and carry no reminders so
// they do not clutter the doctor's own calendar.
type EventSpec struct {
	Summary     string
	Description string
	Start       time.Time
	End         time.Time
	Transparent bool
	ColorID     string
	NoReminders bool
}

// Provider is the narrow contract against the external calendar API. There is
// deliberately no update call: sync treats a missing local mapping as create.
type Provider interface {
	ListEvents(ctx context.Context, credential string, from, to time.Time) ([]Event, error)
	InsertEvent(ctx context.Context, credential string, spec EventSpec) (string, error)
}

// Detail records what happened to one event or slot during a bridge run.
type Detail struct {
	EventID string `json:"eventId,omitempty"`
	SlotID  string `json:"slotId,omitempty"`
	Action  string `json:"action"` // imported, exported, created, skipped, error
	Reason  string `json:"reason,omitempty"`
}

type ImportResult struct {
	Imported int      `json:"imported"`
	Skipped  int      `json:"skipped"`
	Errors   int      `json:"errors"`
	Details  []Detail `json:"details"`
}

type ExportResult struct {
	Exported int      `json:"exported"`
	Skipped  int      `json:"skipped"`
	Errors   int      `json:"errors"`
	Details  []Detail `json:"details"`
}

// SyncResult counts two-way reconciliation outcomes. Updated and Deleted are
// always zero under the presence-of-mapping heuristic; see Bridge.Sync.
type SyncResult struct {
	Created int      `json:"created"`
	Updated int      `json:"updated"`
	Deleted int      `json:"deleted"`
	Errors  int      `json:"errors"`
	Details []Detail `json:"details"`
}
