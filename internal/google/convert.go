package google

import (
	"time"

	"google.golang.org/api/calendar/v3"

	"github.com/calrelay/calrelay/internal/model"
)

// toExternalEvent converts a provider event into the engine's representation.
// Volatile metadata (Updated, Etag, HTMLLink) is carried for auditing but is
// excluded from fingerprinting by the model.
func toExternalEvent(e *calendar.Event) *model.ExternalEvent {
	ext := &model.ExternalEvent{
		ID:          e.Id,
		Summary:     e.Summary,
		Description: e.Description,
		Location:    e.Location,
		Etag:        e.Etag,
		HTMLLink:    e.HtmlLink,
		Start:       toEventTime(e.Start),
		End:         toEventTime(e.End),
	}

	if e.Updated != "" {
		if t, err := time.Parse(time.RFC3339, e.Updated); err == nil {
			ext.Updated = t
		}
	}

	for _, a := range e.Attendees {
		ext.Attendees = append(ext.Attendees, model.Attendee{
			Email:       a.Email,
			DisplayName: a.DisplayName,
		})
	}
	return ext
}

// toProviderEvent builds the wire representation of an external event draft.
// The ID is left unset; the provider assigns it on creation.
func toProviderEvent(e *model.ExternalEvent) *calendar.Event {
	ev := &calendar.Event{
		Summary:     e.Summary,
		Description: e.Description,
		Location:    e.Location,
		Start:       toProviderTime(e.Start),
		End:         toProviderTime(e.End),
	}

	for _, a := range e.Attendees {
		ev.Attendees = append(ev.Attendees, &calendar.EventAttendee{
			Email:       a.Email,
			DisplayName: a.DisplayName,
		})
	}
	return ev
}

func toEventTime(t *calendar.EventDateTime) model.EventTime {
	if t == nil {
		return model.EventTime{}
	}
	if t.Date != "" {
		return model.EventTime{Date: t.Date}
	}
	parsed, err := time.Parse(time.RFC3339, t.DateTime)
	if err != nil {
		// Unparseable instants degrade to date-only, mirroring the
		// translation layer's tolerance for bad provider data.
		return model.EventTime{Date: t.Date}
	}
	return model.EventTime{DateTime: parsed, TimeZone: t.TimeZone}
}

func toProviderTime(t model.EventTime) *calendar.EventDateTime {
	if t.IsZero() {
		return nil
	}
	if t.Date != "" {
		return &calendar.EventDateTime{Date: t.Date}
	}
	return &calendar.EventDateTime{
		DateTime: t.DateTime.Format(time.RFC3339),
		TimeZone: t.TimeZone,
	}
}
