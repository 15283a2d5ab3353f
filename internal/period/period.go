// Package period slices calendar time into budget accounting windows.
//
// Windows never span two months. Weekly windows are month-relative: days
// 1-7 are week 1, 8-14 week 2 and so on, so days 29-31 form a short week 5.
package period

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Periodicity is the cadence a budget is sliced by.
type Periodicity string

const (
	Monthly  Periodicity = "monthly"
	Biweekly Periodicity = "biweekly"
	Weekly   Periodicity = "weekly"
)

// ErrUnknownPeriodicity is returned for any value outside the closed set.
var ErrUnknownPeriodicity = errors.New("unknown periodicity")

// Periodicities lists every supported cadence.
func Periodicities() []Periodicity {
	return []Periodicity{Monthly, Biweekly, Weekly}
}

// Valid reports whether p is one of the supported cadences.
func (p Periodicity) Valid() bool {
	switch p {
	case Monthly, Biweekly, Weekly:
		return true
	default:
		return false
	}
}

// ParsePeriodicity converts a raw string into a Periodicity.
func ParsePeriodicity(s string) (Periodicity, error) {
	p := Periodicity(s)
	if !p.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownPeriodicity, s)
	}
	return p, nil
}

// Key identifies a window within a budget. Half and Week are 0 when the
// periodicity does not use them.
type Key struct {
	Year  int `json:"year"`
	Month int `json:"month"`
	Half  int `json:"half,omitempty"`
	Week  int `json:"week,omitempty"`
}

func (k Key) String() string {
	switch {
	case k.Half > 0:
		return fmt.Sprintf("%04d-%02d/H%d", k.Year, k.Month, k.Half)
	case k.Week > 0:
		return fmt.Sprintf("%04d-%02d/W%d", k.Year, k.Month, k.Week)
	default:
		return fmt.Sprintf("%04d-%02d", k.Year, k.Month)
	}
}

// Periodicity returns the cadence whose windows use keys of this shape.
func (k Key) Periodicity() Periodicity {
	switch {
	case k.Half > 0:
		return Biweekly
	case k.Week > 0:
		return Weekly
	default:
		return Monthly
	}
}

// Window is a period key with its inclusive bounds. End is the last whole
// second of the window (23:59:59 of the final day).
type Window struct {
	Key   Key
	Start time.Time
	End   time.Time
}

// Until returns the exclusive upper bound, one second after End. Range
// queries use [Start, Until) so sub-second instants in the last second match.
func (w Window) Until() time.Time {
	return w.End.Add(time.Second)
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.Until())
}

// Calculator computes windows in a fixed location.
type Calculator struct {
	loc *time.Location
}

// NewCalculator returns a Calculator that interprets reference instants in
// loc. A nil loc means UTC.
func NewCalculator(loc *time.Location) *Calculator {
	if loc == nil {
		loc = time.UTC
	}
	return &Calculator{loc: loc}
}

// Location returns the zone boundaries are computed in.
func (c *Calculator) Location() *time.Location {
	return c.loc
}

// Compute returns the window of periodicity p that contains ref.
func (c *Calculator) Compute(p Periodicity, ref time.Time) (Window, error) {
	ref = ref.In(c.loc)
	year, month, day := ref.Date()
	last := daysIn(year, month)

	var key Key
	var first, final int

	switch p {
	case Monthly:
		key = Key{Year: year, Month: int(month)}
		first, final = 1, last
	case Biweekly:
		if day <= 15 {
			key = Key{Year: year, Month: int(month), Half: 1}
			first, final = 1, 15
		} else {
			key = Key{Year: year, Month: int(month), Half: 2}
			first, final = 16, last
		}
	case Weekly:
		week := (day-1)/7 + 1
		key = Key{Year: year, Month: int(month), Week: week}
		first = 7*(week-1) + 1
		final = min(7*week, last)
	default:
		return Window{}, fmt.Errorf("%w: %q", ErrUnknownPeriodicity, string(p))
	}

	return Window{
		Key:   key,
		Start: time.Date(year, month, first, 0, 0, 0, 0, c.loc),
		End:   time.Date(year, month, final, 23, 59, 59, 0, c.loc),
	}, nil
}

// Next returns the window immediately after w for periodicity p.
func (c *Calculator) Next(p Periodicity, w Window) (Window, error) {
	return c.Compute(p, w.Until())
}

// DaysRemaining counts whole calendar days from asOf to the end of w,
// including the final day. It is 0 once the window has elapsed.
func (c *Calculator) DaysRemaining(w Window, asOf time.Time) int {
	asOf = asOf.In(c.loc)
	if !asOf.Before(w.Until()) {
		return 0
	}
	today := time.Date(asOf.Year(), asOf.Month(), asOf.Day(), 0, 0, 0, 0, c.loc)
	lastDay := time.Date(w.End.Year(), w.End.Month(), w.End.Day(), 0, 0, 0, 0, c.loc)
	return int(math.Round(lastDay.Sub(today).Hours()/24)) + 1
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
