// Package schedule holds the pure time arithmetic for slot generation:
// wall-clock parsing, the candidate grid, half-open overlap, and the
// period buckets used to match waitlist demand to freed slots.
package schedule

import (
	"fmt"
	"time"
)

// GridStep is the fixed cadence at which candidate slots are generated,
// regardless of service duration.
const GridStep = 30 * time.Minute

// ParseClock parses an "HH:MM" wall-clock string into hour and minute.
func ParseClock(s string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, 0, fmt.Errorf("parse clock %q: %w", s, err)
	}
	return t.Hour(), t.Minute(), nil
}

// At combines a date with an "HH:MM" wall-clock string in the date's location.
func At(date time.Time, clock string) (time.Time, error) {
	h, m, err := ParseClock(clock)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(date.Year(), date.Month(), date.Day(), h, m, 0, 0, date.Location()), nil
}

// Grid returns candidate slot start times from dayStart at the fixed step,
// keeping only starts where start+duration still fits before dayEnd.
func Grid(dayStart, dayEnd time.Time, duration time.Duration) []time.Time {
	if duration <= 0 || !dayEnd.After(dayStart) {
		return nil
	}

	var slots []time.Time
	for t := dayStart; !t.Add(duration).After(dayEnd); t = t.Add(GridStep) {
		slots = append(slots, t)
	}
	return slots
}

// Overlaps reports whether the half-open intervals [aStart,aEnd) and
// [bStart,bEnd) intersect. Touching boundaries do not overlap, which is
// what allows back-to-back bookings.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

// Interval is a half-open [Start, End) time range.
type Interval struct {
	Start time.Time
	End   time.Time
}

// OverlapsAny reports whether [start,end) intersects any of the busy intervals.
func OverlapsAny(start, end time.Time, busy []Interval) bool {
	for _, b := range busy {
		if Overlaps(start, end, b.Start, b.End) {
			return true
		}
	}
	return false
}

// Period buckets a time of day for waitlist matching.
type Period string

const (
	PeriodMorning   Period = "morning"   // [06:00, 12:00)
	PeriodAfternoon Period = "afternoon" // [12:00, 18:00)
	PeriodEvening   Period = "evening"   // [18:00, 24:00)
	PeriodAny       Period = "any"
)

func (p Period) Valid() bool {
	switch p {
	case PeriodMorning, PeriodAfternoon, PeriodEvening, PeriodAny:
		return true
	}
	return false
}

// PeriodOf returns the bucket for a slot start time. Times before 06:00 fall
// into no bucket and only match entries asking for any period.
func PeriodOf(t time.Time) Period {
	switch h := t.Hour(); {
	case h >= 6 && h < 12:
		return PeriodMorning
	case h >= 12 && h < 18:
		return PeriodAfternoon
	case h >= 18:
		return PeriodEvening
	default:
		return ""
	}
}

// DateOnly truncates t to midnight in its own location.
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
