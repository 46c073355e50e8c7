// Package availability expands the host's recurring weekly template into
// concrete absolute-time intervals.
package availability

import (
	"fmt"
	"time"

	"michael/internal/interval"
	"michael/internal/schederr"
)

// Rule is one entry of the host's weekly availability template: a day of week
// (ISO 8601, 1 Monday .. 7 Sunday) and a local wall-clock start/end. The host
// timezone is carried separately and shared by all rules.
type Rule struct {
	ID        int64
	DayOfWeek int
	Start     TimeOfDay
	End       TimeOfDay
}

// TimeOfDay is a local wall-clock time, independent of any date or zone.
type TimeOfDay struct {
	Hour   int
	Minute int
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

func (t TimeOfDay) minutes() int {
	return t.Hour*60 + t.Minute
}

// ParseTimeOfDay accepts "HH:MM", tolerating a trailing seconds component the
// way Postgres renders TIME columns ("09:00:00").
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	if len(s) > 5 {
		s = s[:5]
	}
	tt, err := time.Parse("15:04", s)
	if err != nil {
		return TimeOfDay{}, schederr.Invalidf("time", "invalid time of day %q", s)
	}
	return TimeOfDay{Hour: tt.Hour(), Minute: tt.Minute()}, nil
}

// Validate rejects rules that could not produce a well-formed interval. End
// must be strictly after start on the same day; rules rolling past midnight
// are rejected here so the expander never sees one.
func (r Rule) Validate() error {
	if r.DayOfWeek < 1 || r.DayOfWeek > 7 {
		return schederr.Invalidf("day_of_week", "must be 1 (Monday) through 7 (Sunday), got %d", r.DayOfWeek)
	}
	if r.End.minutes() <= r.Start.minutes() {
		return schederr.Invalidf("end_time", "must be after start_time (%s <= %s)", r.End, r.Start)
	}
	return nil
}

func isoWeekday(d time.Weekday) int {
	if d == time.Sunday {
		return 7
	}
	return int(d)
}

// Expand walks each calendar date of the host timezone from from to to and
// emits one absolute interval per rule matching that date's local day of week.
// The local wall-clock boundaries are resolved against that specific date's
// UTC offset, so the same rule yields different offsets on either side of a
// DST transition while keeping the same local times.
//
// Emitted intervals are those overlapping [from, to); they are not clipped to
// the range. Results are ordered by start.
func Expand(rules []Rule, loc *time.Location, from, to time.Time) []interval.Interval {
	if len(rules) == 0 || !from.Before(to) {
		return nil
	}

	byDay := make(map[int][]Rule, len(rules))
	for _, r := range rules {
		byDay[r.DayOfWeek] = append(byDay[r.DayOfWeek], r)
	}

	var out []interval.Interval
	local := from.In(loc)
	day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	for day.Before(to) {
		for _, r := range byDay[isoWeekday(day.Weekday())] {
			iv := interval.Interval{
				Start: time.Date(day.Year(), day.Month(), day.Day(), r.Start.Hour, r.Start.Minute, 0, 0, loc),
				End:   time.Date(day.Year(), day.Month(), day.Day(), r.End.Hour, r.End.Minute, 0, 0, loc),
			}
			if iv.Overlaps(interval.Interval{Start: from, End: to}) {
				out = append(out, iv)
			}
		}
		// AddDate advances by calendar day, so 23- and 25-hour DST days
		// stay aligned to local midnight.
		day = day.AddDate(0, 0, 1)
	}
	return interval.Merge(out)
}
