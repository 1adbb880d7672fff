package ics

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "rentcal/internal/log"
	"rentcal/internal/model"
)

var utf8BOM = []byte("\xef\xbb\xbf")

// maxBookingSpan rejects bookings no rental feed produces, such as a DTEND
// typed with the wrong year. One booking is expanded day by day.
const maxBookingSpan = 3 * 366 * 24 * time.Hour

// ParseBookings parses a calendar document into booking events.
//
//   - Only VEVENTs with both DTSTART and DTEND are returned; anything else
//     (VTODO, VTIMEZONE, events missing a bound) is skipped silently.
//   - A DTSTART/DTEND that is present but unreadable yields *ParseError.
//   - RRULE/EXDATE are recorded but not expanded; see ExpandToBookedDays.
//
// Callers are expected to have run CheckFormat first.
func ParseBookings(body []byte) ([]model.BookingEvent, error) {
	body = bytes.TrimPrefix(body, utf8BOM)
	body = bytes.TrimLeft(body, " \t\r\n")
	if len(body) == 0 {
		return nil, &ParseError{Err: errors.New("empty calendar body")}
	}

	// Some providers emit X- properties between components; accept them.
	cal, err := ical.ParseCalendarWithOptions(bytes.NewReader(body),
		ical.WithUnknownPropertyHandler(ical.AcceptUnknownPropertyHandler))
	if err != nil {
		appLog.Error("ics parse failed", err)
		return nil, &ParseError{Err: err}
	}

	vevents := cal.Events()
	events := make([]model.BookingEvent, 0, len(vevents))
	skipped := 0
	for _, ve := range vevents {
		ev, ok, perr := parseVEvent(ve)
		if perr != nil {
			return nil, perr
		}
		if !ok {
			skipped++
			continue
		}
		events = append(events, ev)
	}

	appLog.Debug("ics parse completed", "event_count", len(events), "skipped", skipped)
	return events, nil
}

// parseVEvent converts a VEVENT. ok is false when the event lacks a start or
// an end and must be ignored.
func parseVEvent(ve *ical.VEvent) (model.BookingEvent, bool, error) {
	var out model.BookingEvent

	if p := ve.GetProperty(ical.ComponentPropertyUniqueId); p != nil {
		out.UID = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.Summary = p.Value
	}

	startProp := ve.GetProperty(ical.ComponentPropertyDtStart)
	endProp := ve.GetProperty(ical.ComponentPropertyDtEnd)
	if !hasValue(startProp) || !hasValue(endProp) {
		return out, false, nil
	}

	start, err := ve.GetStartAt()
	if err != nil {
		start, err = parseTimeIn(startProp.Value, time.UTC)
		if err != nil {
			return out, false, &ParseError{UID: out.UID, Err: fmt.Errorf("DTSTART: %w", err)}
		}
	}
	end, err := ve.GetEndAt()
	if err != nil {
		end, err = parseTimeIn(endProp.Value, time.UTC)
		if err != nil {
			return out, false, &ParseError{UID: out.UID, Err: fmt.Errorf("DTEND: %w", err)}
		}
	}
	out.Start = start
	out.End = end

	if end.Sub(start) > maxBookingSpan {
		return out, false, &ParseError{UID: out.UID, Err: fmt.Errorf("booking spans %s to %s, longer than %d days",
			start.Format(time.DateOnly), end.Format(time.DateOnly), int(maxBookingSpan/(24*time.Hour)))}
	}

	if p := ve.GetProperty(ical.ComponentPropertyRrule); hasValue(p) {
		out.RRule = strings.TrimSpace(p.Value)
	}

	// EXDATE can appear multiple times and hold comma-separated values.
	// UTC and TZID values are instants; floating values and unknown zones
	// are read on the booking's own clock.
	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		loc := start.Location()
		if tz := p.ICalParameters[string(ical.ParameterTzid)]; len(tz) == 1 {
			if l, err := time.LoadLocation(tz[0]); err == nil {
				loc = l
			}
		}
		for _, part := range strings.Split(p.Value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			t, err := parseTimeIn(part, loc)
			if err != nil {
				appLog.Warn("ics ignoring unreadable EXDATE", "uid", out.UID, "value", part)
				continue
			}
			out.ExDates = append(out.ExDates, t)
		}
	}

	return out, true, nil
}

func hasValue(p *ical.IANAProperty) bool {
	return p != nil && strings.TrimSpace(p.Value) != ""
}

// parseTimeIn reads a DATE or DATE-TIME value. A trailing Z means UTC;
// anything else is wall-clock time in loc. With time.UTC it is the
// fallback when the library refuses a value, typically because of a TZID
// the host has no zone data for (e.g. Windows zone names). The date
// components are preserved, which is all day expansion needs.
func parseTimeIn(v string, loc *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	switch {
	case v == "":
		return time.Time{}, errors.New("empty time value")
	case strings.HasSuffix(v, "Z") && strings.Contains(v, "T"):
		return time.Parse("20060102T150405Z", v)
	case strings.Contains(v, "T"):
		return time.ParseInLocation("20060102T150405", v, loc)
	default:
		return time.ParseInLocation("20060102", v, loc)
	}
}
