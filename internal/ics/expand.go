package ics

import (
	"time"

	"github.com/teambition/rrule-go"

	appLog "rentcal/internal/log"
	"rentcal/internal/model"
)

const (
	defaultMaxOccurrencesPerEvent = 5000
	defaultHorizon                = 365 * 24 * time.Hour
)

// ExpandConfig controls expansion of recurring bookings. Plain bookings are
// expanded in full regardless of these values.
type ExpandConfig struct {
	// Now anchors the recurrence window: occurrences already over at Now
	// are skipped and the horizon counts from it. Zero means time.Now().
	Now time.Time

	// Horizon is how far past Now recurring bookings are expanded.
	// Zero means one year.
	Horizon time.Duration

	// MaxOccurrencesPerEvent caps a single RRULE. Zero means
	// defaultMaxOccurrencesPerEvent.
	MaxOccurrencesPerEvent int
}

func (c ExpandConfig) normalized() ExpandConfig {
	if c.Now.IsZero() {
		c.Now = time.Now()
	}
	if c.Horizon <= 0 {
		c.Horizon = defaultHorizon
	}
	if c.MaxOccurrencesPerEvent <= 0 {
		c.MaxOccurrencesPerEvent = defaultMaxOccurrencesPerEvent
	}
	return c
}

// ExpandDocument parses body and expands it into booked days. It returns
// the day set, the number of bookings that contributed, and a *ParseError if
// the document could not be read.
func ExpandDocument(body []byte, cfg ExpandConfig) (model.DaySet, int, error) {
	events, err := ParseBookings(body)
	if err != nil {
		return nil, 0, err
	}
	days, count := ExpandToBookedDays(events, cfg)
	return days, count, nil
}

// ExpandToBookedDays turns bookings into the sorted set of booked days.
//
// Every booking covers [Start, End) at day granularity: the start day is
// booked, the end day (checkout) is not. Dates are read in each instant's
// own location; see model.DateOf. Overlapping bookings count each day once.
//
// The returned count is the number of bookings considered; a recurring
// booking counts once however many occurrences it has.
func ExpandToBookedDays(events []model.BookingEvent, cfg ExpandConfig) (model.DaySet, int) {
	cfg = cfg.normalized()

	b := model.NewDaySetBuilder()
	count := 0
	for _, ev := range events {
		count++
		if ev.RRule == "" {
			b.AddRange(model.DateOf(ev.Start), model.DateOf(ev.End))
			continue
		}
		expandRecurring(b, ev, cfg)
	}
	return b.Build(), count
}

// maxRecurrenceSteps bounds how many instances of one rule are walked,
// skipped past ones included, so a dense rule anchored years ago cannot
// stall a sync.
const maxRecurrenceSteps = 1_000_000

// expandRecurring books the event's own [Start, End) and then every later
// occurrence that is not over at cfg.Now and starts before the horizon, up
// to MaxOccurrencesPerEvent of them.
func expandRecurring(b *model.DaySetBuilder, ev model.BookingEvent, cfg ExpandConfig) {
	b.AddRange(model.DateOf(ev.Start), model.DateOf(ev.End))

	r, err := rrule.StrToRRule(ev.RRule)
	if err != nil {
		appLog.Error("expand: failed to parse RRULE", err, "uid", ev.UID, "rrule", ev.RRule)
		return
	}
	r.DTStart(ev.Start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.ExDates {
		set.ExDate(ex)
	}

	dur := ev.End.Sub(ev.Start)
	rangeEnd := cfg.Now.Add(cfg.Horizon)
	next := set.Iterator()
	emitted := 0
	for steps := 0; ; steps++ {
		if steps == maxRecurrenceSteps {
			appLog.Warn("expand: gave up walking RRULE", "uid", ev.UID, "steps", steps)
			return
		}
		occ, ok := next()
		if !ok || occ.After(rangeEnd) {
			return
		}
		end := occ.Add(dur)
		if !end.After(cfg.Now) {
			continue
		}
		if emitted == cfg.MaxOccurrencesPerEvent {
			appLog.Warn("expand: truncated occurrences for UID due to cap",
				"uid", ev.UID,
				"cap", cfg.MaxOccurrencesPerEvent,
			)
			return
		}
		b.AddRange(model.DateOf(occ), model.DateOf(end))
		emitted++
	}
}
