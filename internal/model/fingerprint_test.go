package model

import (
	"testing"
	"time"
)

var berlin = mustLoadLocation("Europe/Berlin")

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

func sampleLocal() *LocalEvent {
	return &LocalEvent{
		ID:           "loc-1",
		UserID:       "user-1",
		Title:        "Team standup",
		Description:  "Daily sync",
		Date:         "2025-03-10",
		StartTime:    "09:00",
		EndTime:      "09:30",
		Location:     "Room 4",
		Participants: []string{"alice@example.com", "Bob"},
	}
}

func TestFingerprintLocal_Deterministic(t *testing.T) {
	e := sampleLocal()
	first := FingerprintLocal(e, berlin)
	second := FingerprintLocal(e, berlin)
	if first != second {
		t.Errorf("fingerprint not deterministic: %q vs %q", first, second)
	}
}

func TestFingerprintLocal_ParticipantOrderIrrelevant(t *testing.T) {
	a := sampleLocal()
	a.Participants = []string{"alice@example.com", "Bob", "carol@example.com"}

	b := sampleLocal()
	b.Participants = []string{"carol@example.com", "alice@example.com", "Bob"}

	if FingerprintLocal(a, berlin) != FingerprintLocal(b, berlin) {
		t.Error("permuting participants changed the fingerprint")
	}
}

func TestFingerprintLocal_ChangesOnContent(t *testing.T) {
	base := FingerprintLocal(sampleLocal(), berlin)

	changed := sampleLocal()
	changed.Title = "Team standup (moved)"
	if FingerprintLocal(changed, berlin) == base {
		t.Error("title change did not change the fingerprint")
	}

	changed = sampleLocal()
	changed.StartTime = "10:00"
	if FingerprintLocal(changed, berlin) == base {
		t.Error("start time change did not change the fingerprint")
	}
}

func TestFingerprintExternal_VolatileMetadataExcluded(t *testing.T) {
	ext := &ExternalEvent{
		ID:      "ext-1",
		Summary: "Team standup",
		Start:   EventTime{DateTime: time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)},
		End:     EventTime{DateTime: time.Date(2025, 3, 10, 8, 30, 0, 0, time.UTC)},
		Updated: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		Etag:    `"v1"`,
	}
	base := FingerprintExternal(ext)

	ext.Updated = ext.Updated.Add(48 * time.Hour)
	ext.Etag = `"v2"`
	ext.HTMLLink = "https://calendar.example.com/event/ext-1"
	if FingerprintExternal(ext) != base {
		t.Error("volatile provider metadata changed the fingerprint")
	}
}

func TestFingerprintExternal_AttendeeOrderIrrelevant(t *testing.T) {
	a := &ExternalEvent{
		Summary: "Planning",
		Start:   EventTime{Date: "2025-03-10"},
		End:     EventTime{Date: "2025-03-11"},
		Attendees: []Attendee{
			{Email: "alice@example.com"},
			{DisplayName: "Bob"},
		},
	}
	b := &ExternalEvent{
		Summary: "Planning",
		Start:   EventTime{Date: "2025-03-10"},
		End:     EventTime{Date: "2025-03-11"},
		Attendees: []Attendee{
			{DisplayName: "Bob"},
			{Email: "alice@example.com"},
		},
	}
	if FingerprintExternal(a) != FingerprintExternal(b) {
		t.Error("permuting attendees changed the fingerprint")
	}
}

// A timed local event and the external event holding the same instant must
// fingerprint identically; this is what lets a freshly created mapping store
// equal fingerprints for both sides.
func TestFingerprint_LocalAndExternalAgree_Timed(t *testing.T) {
	local := &LocalEvent{
		Title:        "Dentist",
		Date:         "2025-03-10",
		StartTime:    "09:00",
		Participants: []string{"alice@example.com"},
	}
	start := time.Date(2025, 3, 10, 9, 0, 0, 0, berlin)
	ext := &ExternalEvent{
		Summary:   "Dentist",
		Start:     EventTime{DateTime: start, TimeZone: "Europe/Berlin"},
		End:       EventTime{DateTime: start.Add(60 * time.Minute), TimeZone: "Europe/Berlin"},
		Attendees: []Attendee{{Email: "alice@example.com"}},
	}

	if FingerprintLocal(local, berlin) != FingerprintExternal(ext) {
		t.Error("timed local/external pair fingerprints differ")
	}
}

func TestFingerprint_LocalAndExternalAgree_AllDay(t *testing.T) {
	local := &LocalEvent{Title: "Holiday", Date: "2025-07-04"}
	ext := &ExternalEvent{
		Summary: "Holiday",
		Start:   EventTime{Date: "2025-07-04"},
		End:     EventTime{Date: "2025-07-05"},
	}

	if FingerprintLocal(local, berlin) != FingerprintExternal(ext) {
		t.Error("all-day local/external pair fingerprints differ")
	}
}

func TestFingerprintLocal_MalformedDateDegrades(t *testing.T) {
	e := sampleLocal()
	e.Date = "not-a-date"

	// Must not panic and must stay deterministic.
	first := FingerprintLocal(e, berlin)
	second := FingerprintLocal(e, berlin)
	if first != second {
		t.Error("degraded fingerprint not deterministic")
	}
}
