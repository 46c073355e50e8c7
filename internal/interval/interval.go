// Package interval provides arithmetic on half-open [start, end) spans of
// absolute time. All operations are pure; callers never need to pre-sort or
// pre-merge their inputs.
package interval

import (
	"sort"
	"time"
)

// Interval is a half-open [Start, End) span of absolute instants.
type Interval struct {
	Start time.Time
	End   time.Time
}

// Valid reports whether the interval is non-empty.
func (iv Interval) Valid() bool {
	return iv.Start.Before(iv.End)
}

// Duration returns End - Start.
func (iv Interval) Duration() time.Duration {
	return iv.End.Sub(iv.Start)
}

// Overlaps reports whether two half-open intervals share any instant.
// [s1,e1) overlaps [s2,e2) iff s1 < e2 && s2 < e1.
func (iv Interval) Overlaps(o Interval) bool {
	return iv.Start.Before(o.End) && o.Start.Before(iv.End)
}

// Contains reports whether o lies entirely within iv.
func (iv Interval) Contains(o Interval) bool {
	return !o.Start.Before(iv.Start) && !o.End.After(iv.End)
}

// Intersect returns the overlap of a and b, if any.
func Intersect(a, b Interval) (Interval, bool) {
	start := a.Start
	if b.Start.After(start) {
		start = b.Start
	}
	end := a.End
	if b.End.Before(end) {
		end = b.End
	}
	if !start.Before(end) {
		return Interval{}, false
	}
	return Interval{Start: start, End: end}, true
}

// Merge coalesces touching or overlapping intervals into a sorted, disjoint
// list. Empty or inverted inputs are dropped. The input slice is not modified.
func Merge(ivs []Interval) []Interval {
	valid := make([]Interval, 0, len(ivs))
	for _, iv := range ivs {
		if iv.Valid() {
			valid = append(valid, iv)
		}
	}
	if len(valid) == 0 {
		return nil
	}
	sort.Slice(valid, func(i, j int) bool { return valid[i].Start.Before(valid[j].Start) })

	out := []Interval{valid[0]}
	for _, iv := range valid[1:] {
		last := &out[len(out)-1]
		if !iv.Start.After(last.End) {
			if iv.End.After(last.End) {
				last.End = iv.End
			}
			continue
		}
		out = append(out, iv)
	}
	return out
}

// Subtract removes every blocker's overlap from a, returning the remaining
// disjoint sub-intervals in ascending start order. Blockers may overlap,
// duplicate, or arrive in any order; the result is the same regardless.
func Subtract(a Interval, blockers []Interval) []Interval {
	if !a.Valid() {
		return nil
	}
	merged := Merge(blockers)

	var out []Interval
	cursor := a.Start
	for _, b := range merged {
		if !b.Overlaps(Interval{Start: cursor, End: a.End}) {
			continue
		}
		if b.Start.After(cursor) {
			out = append(out, Interval{Start: cursor, End: b.Start})
		}
		if b.End.After(cursor) {
			cursor = b.End
		}
		if !cursor.Before(a.End) {
			return out
		}
	}
	if cursor.Before(a.End) {
		out = append(out, Interval{Start: cursor, End: a.End})
	}
	return out
}
