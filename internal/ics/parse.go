package ics

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "timeaxis/internal/log"
)

// Event is one VEVENT. Recurrences are kept as the raw RRULE and expanded
// by Expand.
type Event struct {
	Source  Source
	UID     string
	Summary string

	Start  time.Time
	End    time.Time
	AllDay bool

	RRule   string
	ExDates []time.Time
	// RecurrenceID is set on a VEVENT that overrides one instance of a
	// recurring event.
	RecurrenceID *time.Time
}

// Parse reads the VEVENTs of an ICS payload. Date-only values are read in
// loc. Events that cannot be read are logged and skipped.
func Parse(src Source, body []byte, loc *time.Location) ([]Event, error) {
	if len(body) == 0 {
		return nil, errors.New("empty ICS body")
	}
	if loc == nil {
		loc = time.UTC
	}
	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", src.ID, err)
	}

	var events []Event
	for _, ve := range cal.Events() {
		ev, err := parseEvent(src, ve, loc)
		if err != nil {
			appLog.Warn("ics vevent skipped", "id", src.ID, "url", redactURL(src.URL), "err", err.Error())
			continue
		}
		events = append(events, ev)
	}
	appLog.Debug("ics parsed", "id", src.ID, "events", len(events))
	return events, nil
}

func parseEvent(src Source, ve *ical.VEvent, loc *time.Location) (Event, error) {
	ev := Event{Source: src}
	uid := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uid == nil || uid.Value == "" {
		return ev, errors.New("missing UID")
	}
	ev.UID = uid.Value
	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		ev.Summary = p.Value
	}

	dtStart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtStart == nil {
		return ev, errors.New("missing DTSTART")
	}
	ev.AllDay = isDateOnly(dtStart)

	var err error
	if ev.AllDay {
		if ev.Start, err = parseValue(dtStart.Value, loc); err != nil {
			return ev, err
		}
		ev.End = ev.Start.AddDate(0, 0, 1)
		if dtEnd := ve.GetProperty(ical.ComponentPropertyDtEnd); dtEnd != nil {
			if end, err := parseValue(dtEnd.Value, loc); err == nil {
				ev.End = end
			}
		}
	} else {
		if ev.Start, err = ve.GetStartAt(); err != nil {
			return ev, fmt.Errorf("DTSTART: %w", err)
		}
		ev.End = ev.Start
		if end, err := ve.GetEndAt(); err == nil {
			ev.End = end
		}
	}

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		ev.RRule = p.Value
	}
	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			if t, err := parseValue(part, exLocation(p, ev.Start.Location())); err == nil {
				ev.ExDates = append(ev.ExDates, t)
			}
		}
	}
	if p := ve.GetProperty("RECURRENCE-ID"); p != nil {
		if t, err := parseValue(p.Value, exLocation(p, ev.Start.Location())); err == nil {
			ev.RecurrenceID = &t
		}
	}
	return ev, nil
}

func isDateOnly(p *ical.IANAProperty) bool {
	if vs, ok := p.ICalParameters["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		return true
	}
	return !strings.Contains(p.Value, "T")
}

// exLocation resolves the TZID parameter of p, falling back to def.
func exLocation(p *ical.IANAProperty, def *time.Location) *time.Location {
	if tz, ok := p.ICalParameters["TZID"]; ok && len(tz) > 0 {
		if loc, err := time.LoadLocation(tz[0]); err == nil {
			return loc
		}
	}
	return def
}

// parseValue reads a DATE or DATE-TIME value. A trailing Z means UTC;
// anything else is read in loc.
func parseValue(v string, loc *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	switch {
	case v == "":
		return time.Time{}, errors.New("empty time value")
	case strings.HasSuffix(v, "Z"):
		return time.Parse("20060102T150405Z", v)
	case strings.Contains(v, "T"):
		return time.ParseInLocation("20060102T150405", v, loc)
	default:
		return time.ParseInLocation("20060102", v, loc)
	}
}
