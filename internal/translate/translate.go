// Package translate converts between the local event representation and the
// provider's. Both directions are pure and total: malformed date/time input
// degrades to a best-effort all-day event instead of failing, so a single bad
// record can never block a sync run.
package translate

import (
	"strings"
	"time"

	"github.com/calrelay/calrelay/internal/model"
)

// defaultDuration is the implied length of a timed event with no explicit end.
const defaultDuration = 60 * time.Minute

// ToExternal builds an external event draft (no ID) from a local event. loc
// anchors the local date + time-of-day to an instant.
func ToExternal(e *model.LocalEvent, loc *time.Location) *model.ExternalEvent {
	ext := &model.ExternalEvent{
		Summary:     e.Title,
		Description: e.Description,
		Location:    e.Location,
		Attendees:   toAttendees(e.Participants),
	}

	if e.StartTime == "" {
		ext.Start, ext.End = allDayRange(e.Date)
		return ext
	}

	start, err := time.ParseInLocation(model.DateLayout+" "+model.TimeLayout, e.Date+" "+e.StartTime, loc)
	if err != nil {
		ext.Start, ext.End = allDayRange(e.Date)
		return ext
	}

	end := start.Add(defaultDuration)
	if e.EndTime != "" {
		if parsed, perr := time.ParseInLocation(model.DateLayout+" "+model.TimeLayout, e.Date+" "+e.EndTime, loc); perr == nil {
			end = parsed
		}
	}

	ext.Start = model.EventTime{DateTime: start, TimeZone: loc.String()}
	ext.End = model.EventTime{DateTime: end, TimeZone: loc.String()}
	return ext
}

// ToLocal builds a local event draft (no ID) from an external event. The
// draft is owned by userID and tagged with OriginExternal.
func ToLocal(e *model.ExternalEvent, userID string, loc *time.Location) *model.LocalEvent {
	local := &model.LocalEvent{
		UserID:       userID,
		Title:        e.Summary,
		Description:  e.Description,
		Location:     e.Location,
		Participants: toParticipants(e.Attendees),
		Origin:       model.OriginExternal,
	}

	if e.AllDay() || e.Start.DateTime.IsZero() {
		local.Date = e.Start.Date
		return local
	}

	start := e.Start.DateTime.In(loc)
	local.Date = start.Format(model.DateLayout)
	local.StartTime = start.Format(model.TimeLayout)

	end := e.End.DateTime
	if end.IsZero() {
		end = e.Start.DateTime.Add(defaultDuration)
	}
	local.EndTime = end.In(loc).Format(model.TimeLayout)
	return local
}

// allDayRange returns a date-only range spanning exactly one calendar day,
// end exclusive. An unparseable date falls back to a zero-width range on the
// raw value so the draft stays representable.
func allDayRange(date string) (model.EventTime, model.EventTime) {
	start := model.EventTime{Date: date}
	d, err := time.Parse(model.DateLayout, date)
	if err != nil {
		return start, model.EventTime{Date: date}
	}
	return start, model.EventTime{Date: d.AddDate(0, 0, 1).Format(model.DateLayout)}
}

// toAttendees maps free-text participant values to provider attendees: values
// containing "@" fill the email slot, everything else the display name.
func toAttendees(participants []string) []model.Attendee {
	if len(participants) == 0 {
		return nil
	}
	attendees := make([]model.Attendee, 0, len(participants))
	for _, p := range participants {
		if strings.Contains(p, "@") {
			attendees = append(attendees, model.Attendee{Email: p})
		} else {
			attendees = append(attendees, model.Attendee{DisplayName: p})
		}
	}
	return attendees
}

// toParticipants is the inverse mapping: email preferred, display name as
// fallback. Attendees with neither are dropped.
func toParticipants(attendees []model.Attendee) []string {
	if len(attendees) == 0 {
		return nil
	}
	participants := make([]string, 0, len(attendees))
	for _, a := range attendees {
		switch {
		case a.Email != "":
			participants = append(participants, a.Email)
		case a.DisplayName != "":
			participants = append(participants, a.DisplayName)
		}
	}
	return participants
}
