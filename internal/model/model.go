package model

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"
)

// BookingEvent is a single booked range read from the calendar feed.
// It only lives for the duration of one synchronization pass.
type BookingEvent struct {
	UID     string
	Summary string

	// Start is inclusive, End is exclusive (the checkout day stays free).
	Start time.Time
	End   time.Time

	// RRule holds the raw RRULE value for recurring bookings, if any.
	RRule   string
	ExDates []time.Time
}

// DateLayout is the wire format of a booked day.
const DateLayout = time.DateOnly

// Date is a calendar day without time of day or zone.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// DateOf returns the calendar date of t as read in t's own location.
// The instant is never converted to another zone first: a DTSTART of
// 20250110T230000Z is 2025-01-10, whatever the server's local zone is.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return DateOf(t), nil
}

// MustDate is ParseDate for literals; it panics on bad input.
func MustDate(s string) Date {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Time returns midnight UTC of d.
func (d Date) Time() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

// AddDays returns d shifted by n days, normalizing month/year overflow.
func (d Date) AddDays(n int) Date {
	return DateOf(d.Time().AddDate(0, 0, n))
}

func (d Date) Compare(o Date) int {
	switch {
	case d.Year != o.Year:
		return cmpInt(d.Year, o.Year)
	case d.Month != o.Month:
		return cmpInt(int(d.Month), int(o.Month))
	default:
		return cmpInt(d.Day, o.Day)
	}
}

func (d Date) Before(o Date) bool { return d.Compare(o) < 0 }

func (d Date) IsZero() bool { return d == Date{} }

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// DaySet is a deduplicated, ascending list of booked days.
// The zero value is the empty set.
type DaySet []Date

// Len returns the number of booked days.
func (s DaySet) Len() int { return len(s) }

// Contains reports whether d is booked.
func (s DaySet) Contains(d Date) bool {
	_, ok := slices.BinarySearchFunc(s, d, Date.Compare)
	return ok
}

// Strings renders the set in wire format. Never returns nil.
func (s DaySet) Strings() []string {
	out := make([]string, 0, len(s))
	for _, d := range s {
		out = append(out, d.String())
	}
	return out
}

// Clone returns a copy that does not share the backing array.
func (s DaySet) Clone() DaySet {
	if s == nil {
		return nil
	}
	return slices.Clone(s)
}

// DaySetBuilder accumulates days from any number of bookings.
type DaySetBuilder struct {
	seen map[Date]struct{}
}

func NewDaySetBuilder() *DaySetBuilder {
	return &DaySetBuilder{seen: make(map[Date]struct{})}
}

// Add marks a single day as booked. Duplicates are ignored.
func (b *DaySetBuilder) Add(d Date) {
	b.seen[d] = struct{}{}
}

// AddRange marks every day in [from, to) as booked. Nothing is added when
// to is not after from.
func (b *DaySetBuilder) AddRange(from, to Date) {
	for d := from; d.Before(to); d = d.AddDays(1) {
		b.Add(d)
	}
}

// Build returns the sorted set.
func (b *DaySetBuilder) Build() DaySet {
	out := make(DaySet, 0, len(b.seen))
	for d := range b.seen {
		out = append(out, d)
	}
	slices.SortFunc(out, Date.Compare)
	return out
}
