// Package model defines shared types used across the sync engine, the store,
// and the provider adapter.
package model

import "time"

// Origin records how a local event came to exist.
type Origin string

const (
	// OriginManual marks events created by the user-facing application.
	OriginManual Origin = "manual"
	// OriginExternal marks events materialized from the remote provider.
	OriginExternal Origin = "external"
	// OriginDerived marks events produced by other subsystems.
	OriginDerived Origin = "derived"
)

// Date and time-of-day layouts used by local events.
const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

// LocalEvent is an event owned by the local store. Date is a calendar day in
// DateLayout; StartTime/EndTime are optional times of day in TimeLayout. An
// empty StartTime means the event is all-day.
type LocalEvent struct {
	ID           string
	UserID       string
	Title        string
	Description  string
	Date         string
	StartTime    string
	EndTime      string
	Location     string
	Participants []string
	Category     string
	Origin       Origin
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Attendee is a single participant on an external event.
type Attendee struct {
	Email       string
	DisplayName string
}

// EventTime is the provider's structured start/end: either a date for all-day
// events or an absolute instant for timed ones. Exactly one of Date and
// DateTime is set.
type EventTime struct {
	Date     string // DateLayout, all-day events
	DateTime time.Time
	TimeZone string
}

// IsZero reports whether neither representation is set.
func (t EventTime) IsZero() bool {
	return t.Date == "" && t.DateTime.IsZero()
}

// ExternalEvent is an event owned by the remote calendar provider. The ID is
// provider-assigned and immutable for the object's lifetime. Updated, Etag,
// and HTMLLink are volatile provider metadata and never participate in
// fingerprinting.
type ExternalEvent struct {
	ID          string
	Summary     string
	Description string
	Start       EventTime
	End         EventTime
	Location    string
	Attendees   []Attendee
	Updated     time.Time
	Etag        string
	HTMLLink    string
}

// AllDay reports whether the event uses date-only bounds.
func (e *ExternalEvent) AllDay() bool {
	return e.Start.Date != ""
}
