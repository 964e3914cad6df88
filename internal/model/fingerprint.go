package model

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"
)

// defaultDuration is the implied length of a timed event with no explicit end.
const defaultDuration = 60 * time.Minute

// canonical is the shared reduced form both event kinds fingerprint. A local
// event and the external event it translates to reduce to the same canonical
// value, so a freshly synced pair stores equal fingerprints on both sides.
type canonical struct {
	title        string
	description  string
	start        string
	end          string
	location     string
	participants []string // sorted
}

// FingerprintLocal returns the content fingerprint of a local event. loc is
// the zone used to anchor date + time-of-day to an instant; it must match the
// zone the translation layer uses.
func FingerprintLocal(e *LocalEvent, loc *time.Location) string {
	return fingerprint(localCanonical(e, loc))
}

// FingerprintExternal returns the content fingerprint of an external event.
// External instants are already absolute, so no zone is needed. Volatile
// provider metadata (Updated, Etag, HTMLLink) never contributes.
func FingerprintExternal(e *ExternalEvent) string {
	return fingerprint(externalCanonical(e))
}

// fingerprint hashes the canonical form. Participants are sorted by the
// canonical builders, so list order in the source event never changes the
// digest.
func fingerprint(c canonical) string {
	h := sha256.New()
	h.Write([]byte(c.title))
	h.Write([]byte("|"))
	h.Write([]byte(c.description))
	h.Write([]byte("|"))
	h.Write([]byte(c.start))
	h.Write([]byte("|"))
	h.Write([]byte(c.end))
	h.Write([]byte("|"))
	h.Write([]byte(c.location))
	h.Write([]byte("|"))
	h.Write([]byte(strings.Join(c.participants, "\x1f")))
	return hex.EncodeToString(h.Sum(nil))
}

func localCanonical(e *LocalEvent, loc *time.Location) canonical {
	c := canonical{
		title:        e.Title,
		description:  e.Description,
		location:     e.Location,
		participants: sortedCopy(e.Participants),
	}

	if e.StartTime == "" {
		c.start, c.end = allDayBounds(e.Date)
		return c
	}

	start, err := time.ParseInLocation(DateLayout+" "+TimeLayout, e.Date+" "+e.StartTime, loc)
	if err != nil {
		// Malformed date/time degrades to all-day, mirroring the
		// translation layer.
		c.start, c.end = allDayBounds(e.Date)
		return c
	}

	end := start.Add(defaultDuration)
	if e.EndTime != "" {
		if parsed, err := time.ParseInLocation(DateLayout+" "+TimeLayout, e.Date+" "+e.EndTime, loc); err == nil {
			end = parsed
		}
	}

	c.start = start.UTC().Format(time.RFC3339)
	c.end = end.UTC().Format(time.RFC3339)
	return c
}

func externalCanonical(e *ExternalEvent) canonical {
	c := canonical{
		title:        e.Summary,
		description:  e.Description,
		location:     e.Location,
		participants: make([]string, 0, len(e.Attendees)),
	}

	for _, a := range e.Attendees {
		if a.Email != "" {
			c.participants = append(c.participants, a.Email)
		} else if a.DisplayName != "" {
			c.participants = append(c.participants, a.DisplayName)
		}
	}
	sort.Strings(c.participants)

	if e.AllDay() {
		c.start = e.Start.Date
		c.end = e.End.Date
		if c.end == "" {
			c.end = nextDay(e.Start.Date)
		}
		return c
	}

	start := e.Start.DateTime
	end := e.End.DateTime
	if end.IsZero() {
		end = start.Add(defaultDuration)
	}
	c.start = start.UTC().Format(time.RFC3339)
	c.end = end.UTC().Format(time.RFC3339)
	return c
}

// allDayBounds returns the canonical one-day date range for an all-day event:
// [date, date+1d) per common calendar semantics.
func allDayBounds(date string) (string, string) {
	return date, nextDay(date)
}

// nextDay returns the day after date, or date unchanged when it does not
// parse. The unchanged fallback keeps degraded events deterministic on both
// sides of a translation.
func nextDay(date string) string {
	d, err := time.Parse(DateLayout, date)
	if err != nil {
		return date
	}
	return d.AddDate(0, 0, 1).Format(DateLayout)
}

func sortedCopy(vals []string) []string {
	out := make([]string, len(vals))
	copy(out, vals)
	sort.Strings(out)
	return out
}
