// Package history enumerates commit days and resolves the commit that
// represents each day, on top of a pluggable repository backend.
package history

import (
	"errors"
	"fmt"
	"time"
)

// dayLayout is the on-disk and display form of a Day.
const dayLayout = time.DateOnly

// ErrInvalidDay is returned when a string cannot be parsed as a Day.
var ErrInvalidDay = errors.New("invalid calendar day")

// Day is a calendar date without a time component. The zero value is not a
// valid day; use ParseDay or DayOf.
type Day struct {
	year  int
	month time.Month
	day   int
}

// DayOf returns the calendar day of t as observed in loc.
func DayOf(t time.Time, loc *time.Location) Day {
	if loc != nil {
		t = t.In(loc)
	}

	y, m, d := t.Date()

	return Day{year: y, month: m, day: d}
}

// ParseDay parses a YYYY-MM-DD string.
func ParseDay(s string) (Day, error) {
	t, err := time.Parse(dayLayout, s)
	if err != nil {
		return Day{}, fmt.Errorf("%w: %q", ErrInvalidDay, s)
	}

	return DayOf(t, time.UTC), nil
}

// MustParseDay is ParseDay for literals; it panics on malformed input.
func MustParseDay(s string) Day {
	d, err := ParseDay(s)
	if err != nil {
		panic(err)
	}

	return d
}

// String returns the YYYY-MM-DD form.
func (d Day) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.year, int(d.month), d.day)
}

// IsZero reports whether d is the zero value.
func (d Day) IsZero() bool {
	return d == Day{}
}

// Compare returns -1, 0 or +1 depending on whether d is before, equal to or
// after other.
func (d Day) Compare(other Day) int {
	switch {
	case d.year != other.year:
		return cmpInt(d.year, other.year)
	case d.month != other.month:
		return cmpInt(int(d.month), int(other.month))
	default:
		return cmpInt(d.day, other.day)
	}
}

// Before reports whether d is strictly before other.
func (d Day) Before(other Day) bool {
	return d.Compare(other) < 0
}

// After reports whether d is strictly after other.
func (d Day) After(other Day) bool {
	return d.Compare(other) > 0
}

// Start returns midnight of d in loc.
func (d Day) Start(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}

	return time.Date(d.year, d.month, d.day, 0, 0, 0, 0, loc)
}

// End returns the last representable instant of d in loc (23:59:59.999999999).
func (d Day) End(loc *time.Location) time.Time {
	return d.Start(loc).AddDate(0, 0, 1).Add(-time.Nanosecond)
}

// AddDays returns the day n days after d (n may be negative).
func (d Day) AddDays(n int) Day {
	return DayOf(d.Start(time.UTC).AddDate(0, 0, n), time.UTC)
}

// DaysUntil returns the number of whole days from d to other.
func (d Day) DaysUntil(other Day) int {
	const hoursPerDay = 24

	return int(other.Start(time.UTC).Sub(d.Start(time.UTC)).Hours() / hoursPerDay)
}

// MarshalText implements encoding.TextMarshaler.
func (d Day) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Day) UnmarshalText(b []byte) error {
	parsed, err := ParseDay(string(b))
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
