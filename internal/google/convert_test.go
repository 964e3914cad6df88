package google

import (
	"testing"
	"time"

	"google.golang.org/api/calendar/v3"

	"github.com/calrelay/calrelay/internal/model"
)

func TestToExternalEvent_Timed(t *testing.T) {
	e := &calendar.Event{
		Id:          "ext-1",
		Summary:     "Dentist",
		Description: "Checkup",
		Location:    "Main St 5",
		Etag:        `"v7"`,
		HtmlLink:    "https://calendar.google.com/event?eid=ext-1",
		Updated:     "2025-03-01T10:00:00Z",
		Start:       &calendar.EventDateTime{DateTime: "2025-03-10T09:00:00+01:00", TimeZone: "Europe/Berlin"},
		End:         &calendar.EventDateTime{DateTime: "2025-03-10T10:00:00+01:00", TimeZone: "Europe/Berlin"},
		Attendees: []*calendar.EventAttendee{
			{Email: "alice@example.com", DisplayName: "Alice"},
			{DisplayName: "Bob"},
		},
	}

	ext := toExternalEvent(e)

	if ext.ID != "ext-1" || ext.Summary != "Dentist" {
		t.Errorf("identity fields = %+v", ext)
	}
	wantStart := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	if !ext.Start.DateTime.Equal(wantStart) {
		t.Errorf("Start = %v, want %v", ext.Start.DateTime, wantStart)
	}
	if ext.Start.TimeZone != "Europe/Berlin" {
		t.Errorf("TimeZone = %q", ext.Start.TimeZone)
	}
	if ext.Updated.IsZero() {
		t.Error("Updated not parsed")
	}
	if len(ext.Attendees) != 2 || ext.Attendees[0].Email != "alice@example.com" || ext.Attendees[1].DisplayName != "Bob" {
		t.Errorf("Attendees = %+v", ext.Attendees)
	}
}

func TestToExternalEvent_AllDay(t *testing.T) {
	e := &calendar.Event{
		Id:      "ext-2",
		Summary: "Holiday",
		Start:   &calendar.EventDateTime{Date: "2025-07-04"},
		End:     &calendar.EventDateTime{Date: "2025-07-05"},
	}

	ext := toExternalEvent(e)

	if !ext.AllDay() {
		t.Fatal("expected all-day event")
	}
	if ext.Start.Date != "2025-07-04" || ext.End.Date != "2025-07-05" {
		t.Errorf("bounds = %+v / %+v", ext.Start, ext.End)
	}
}

func TestToProviderEvent_OmitsID(t *testing.T) {
	start := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	draft := &model.ExternalEvent{
		ID:      "must-not-leak",
		Summary: "Dentist",
		Start:   model.EventTime{DateTime: start, TimeZone: "UTC"},
		End:     model.EventTime{DateTime: start.Add(time.Hour), TimeZone: "UTC"},
		Attendees: []model.Attendee{
			{Email: "alice@example.com"},
		},
	}

	ev := toProviderEvent(draft)

	if ev.Id != "" {
		t.Error("draft ID leaked into the provider payload; the provider assigns ids")
	}
	if ev.Start == nil || ev.Start.DateTime != "2025-03-10T09:00:00Z" {
		t.Errorf("Start = %+v", ev.Start)
	}
	if len(ev.Attendees) != 1 || ev.Attendees[0].Email != "alice@example.com" {
		t.Errorf("Attendees = %+v", ev.Attendees)
	}
}

func TestToProviderEvent_AllDay(t *testing.T) {
	draft := &model.ExternalEvent{
		Summary: "Holiday",
		Start:   model.EventTime{Date: "2025-07-04"},
		End:     model.EventTime{Date: "2025-07-05"},
	}

	ev := toProviderEvent(draft)

	if ev.Start == nil || ev.Start.Date != "2025-07-04" || ev.Start.DateTime != "" {
		t.Errorf("Start = %+v, want date-only", ev.Start)
	}
	if ev.End == nil || ev.End.Date != "2025-07-05" {
		t.Errorf("End = %+v, want date-only", ev.End)
	}
}

func TestToEventTime_MalformedDateTime(t *testing.T) {
	got := toEventTime(&calendar.EventDateTime{DateTime: "yesterday-ish"})
	if !got.DateTime.IsZero() {
		t.Error("malformed datetime must not produce an instant")
	}
}

// Round trip through the wire representation keeps the fingerprint stable so
// a push immediately followed by a fetch never looks like a remote change.
func TestConvert_RoundTripFingerprint(t *testing.T) {
	start := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	ext := &model.ExternalEvent{
		Summary:     "Planning",
		Description: "Q2",
		Location:    "Room 4",
		Start:       model.EventTime{DateTime: start, TimeZone: "UTC"},
		End:         model.EventTime{DateTime: start.Add(time.Hour), TimeZone: "UTC"},
		Attendees: []model.Attendee{
			{Email: "alice@example.com"},
			{DisplayName: "Bob"},
		},
	}

	back := toExternalEvent(toProviderEvent(ext))
	back.ID = ext.ID

	if model.FingerprintExternal(back) != model.FingerprintExternal(ext) {
		t.Error("round trip through the wire format changed the fingerprint")
	}
}
