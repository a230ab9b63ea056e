package domain

import (
	"fmt"
	"time"
)

// DateLayout is the calendar date format used on the wire and in storage keys.
const DateLayout = "2006-01-02"

// Stay is a half-open date range [CheckIn, CheckOut). Each date in the range is one night.
type Stay struct {
	CheckIn  time.Time `json:"check_in"`
	CheckOut time.Time `json:"check_out"`
}

// NewStay truncates both bounds to UTC calendar dates.
func NewStay(checkIn, checkOut time.Time) Stay {
	return Stay{CheckIn: TruncateDate(checkIn), CheckOut: TruncateDate(checkOut)}
}

// ParseStay parses two yyyy-mm-dd strings into a Stay.
func ParseStay(checkIn, checkOut string) (Stay, error) {
	in, err := time.Parse(DateLayout, checkIn)
	if err != nil {
		return Stay{}, fmt.Errorf("%w: invalid check-in date %q", ErrValidation, checkIn)
	}
	out, err := time.Parse(DateLayout, checkOut)
	if err != nil {
		return Stay{}, fmt.Errorf("%w: invalid check-out date %q", ErrValidation, checkOut)
	}
	return NewStay(in, out), nil
}

// TruncateDate drops the clock part and pins the date to UTC.
func TruncateDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Valid reports whether the stay covers at least one night.
func (s Stay) Valid() bool {
	return s.CheckOut.After(s.CheckIn)
}

// NightCount returns the number of nights, or 0 for an empty or inverted range.
func (s Stay) NightCount() int {
	if !s.Valid() {
		return 0
	}
	return int(s.CheckOut.Sub(s.CheckIn).Hours() / 24)
}

// Nights lists every night date in the stay in ascending order.
func (s Stay) Nights() []time.Time {
	n := s.NightCount()
	nights := make([]time.Time, 0, n)
	for d := s.CheckIn; d.Before(s.CheckOut); d = d.AddDate(0, 0, 1) {
		nights = append(nights, d)
	}
	return nights
}

// Overlaps reports whether two stays share at least one night.
func (s Stay) Overlaps(o Stay) bool {
	return s.CheckIn.Before(o.CheckOut) && o.CheckIn.Before(s.CheckOut)
}

func (s Stay) String() string {
	return fmt.Sprintf("[%s, %s)", s.CheckIn.Format(DateLayout), s.CheckOut.Format(DateLayout))
}
