package ics

import (
	"fmt"
	"io"
	"time"

	ical "github.com/arran4/golang-ical"

	"rentcal/internal/model"
)

// WriteAvailability encodes booked days as an iCalendar feed so other
// platforms can subscribe to the merged availability. Consecutive days are
// folded into a single all-day VEVENT with an exclusive DTEND.
func WriteAvailability(w io.Writer, name string, days model.DaySet, stamp time.Time) error {
	cal := ical.NewCalendarFor("rentcal")
	cal.SetMethod(ical.MethodPublish)
	if name != "" {
		cal.SetXWRCalName(name)
	}

	for _, r := range dayRuns(days) {
		ev := cal.AddEvent(r.from.String() + "@rentcal")
		ev.SetDtStampTime(stamp)
		ev.SetSummary("Booked")
		ev.SetAllDayStartAt(r.from.Time())
		ev.SetAllDayEndAt(r.to.Time())
	}

	if err := cal.SerializeTo(w); err != nil {
		return fmt.Errorf("encode ICS: %w", err)
	}
	return nil
}

// dayRun is a half-open range of consecutive booked days.
type dayRun struct {
	from, to model.Date
}

func dayRuns(days model.DaySet) []dayRun {
	var runs []dayRun
	for _, d := range days {
		if n := len(runs); n > 0 && runs[n-1].to == d {
			runs[n-1].to = d.AddDays(1)
			continue
		}
		runs = append(runs, dayRun{from: d, to: d.AddDays(1)})
	}
	return runs
}
