// Package slots computes bookable time slots from participant windows, the
// host's weekly availability, and the current set of busy spans. Computation
// is pure and read-only; it holds no locks and may run concurrently.
package slots

import (
	"context"
	"fmt"
	"sort"
	"time"

	"michael/internal/availability"
	"michael/internal/interval"
	"michael/internal/schederr"
)

// Duration bounds for a single meeting, minutes inclusive.
const (
	MinDurationMinutes = 5
	MaxDurationMinutes = 480
)

// Window is a participant-claimed span of free time. Start and End are
// absolute instants; Timezone is the IANA zone the participant used, kept for
// display only.
type Window struct {
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	Timezone string    `json:"timezone,omitempty"`
}

// Slot is a candidate bookable span. Start and End carry the requested output
// zone so RFC 3339 rendering includes the numeric UTC offset.
type Slot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Settings is the host's process-wide scheduling policy.
type Settings struct {
	MinNoticeHours         int `json:"min_notice_hours"`
	BookingWindowDays      int `json:"booking_window_days"`
	DefaultDurationMinutes int `json:"default_duration_minutes"`
}

// Validate rejects settings that would make every computation empty or
// unbounded.
func (s Settings) Validate() error {
	if s.MinNoticeHours < 0 {
		return schederr.Invalid("min_notice_hours", "must be >= 0")
	}
	if s.BookingWindowDays < 1 {
		return schederr.Invalid("booking_window_days", "must be >= 1")
	}
	if s.DefaultDurationMinutes < MinDurationMinutes || s.DefaultDurationMinutes > MaxDurationMinutes {
		return schederr.Invalidf("default_duration_minutes",
			"must be %d-%d", MinDurationMinutes, MaxDurationMinutes)
	}
	return nil
}

// HostSource supplies the host's availability template and scheduling policy.
type HostSource interface {
	HostAvailability(ctx context.Context) ([]availability.Rule, *time.Location, error)
	SchedulingSettings(ctx context.Context) (Settings, error)
}

// BlockerSource supplies the busy spans that remove bookability: confirmed
// bookings and cached external-calendar events. Both are read-only here.
type BlockerSource interface {
	ConfirmedBusy(ctx context.Context, from, to time.Time) ([]interval.Interval, error)
	CalendarBusy(ctx context.Context, from, to time.Time) ([]interval.Interval, error)
}

// Computer wires the slot computation to its collaborators. Now is injected
// so notice/horizon filtering is deterministic in tests.
type Computer struct {
	Host     HostSource
	Blockers BlockerSource
	Now      func() time.Time
}

// Request is one ComputeSlots call.
type Request struct {
	Windows         []Window
	DurationMinutes int    // 0 means the host's default duration
	Timezone        string // output zone; empty means the host zone
}

// Compute returns every bookable slot of the requested duration that fits the
// participant's windows, the host's expanded availability, and the current
// blockers, then applies the minimum-notice and booking-horizon policy.
// An empty result is a valid outcome, not an error.
func (c *Computer) Compute(ctx context.Context, req Request) ([]Slot, error) {
	settings, err := c.Host.SchedulingSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("load scheduling settings: %w", err)
	}

	durMinutes := req.DurationMinutes
	if durMinutes == 0 {
		durMinutes = settings.DefaultDurationMinutes
	}
	if durMinutes < MinDurationMinutes || durMinutes > MaxDurationMinutes {
		return nil, schederr.Invalidf("duration_minutes",
			"must be %d-%d, got %d", MinDurationMinutes, MaxDurationMinutes, durMinutes)
	}
	if len(req.Windows) == 0 {
		return nil, schederr.Invalid("windows", "at least one availability window is required")
	}
	for i, w := range req.Windows {
		if !w.Start.Before(w.End) {
			return nil, schederr.Invalidf("windows", "window %d: start must be before end", i)
		}
	}

	rules, hostLoc, err := c.Host.HostAvailability(ctx)
	if err != nil {
		return nil, fmt.Errorf("load host availability: %w", err)
	}

	outLoc := hostLoc
	if req.Timezone != "" {
		outLoc, err = time.LoadLocation(req.Timezone)
		if err != nil {
			return nil, schederr.Invalidf("timezone", "unknown timezone %q", req.Timezone)
		}
	}

	// Bounding range: the union of all participant windows.
	bounds := interval.Interval{Start: req.Windows[0].Start, End: req.Windows[0].End}
	for _, w := range req.Windows[1:] {
		if w.Start.Before(bounds.Start) {
			bounds.Start = w.Start
		}
		if w.End.After(bounds.End) {
			bounds.End = w.End
		}
	}

	expanded := availability.Expand(rules, hostLoc, bounds.Start, bounds.End)
	if len(expanded) == 0 {
		return []Slot{}, nil
	}

	// Intersect every window with every expanded host interval.
	var candidates []interval.Interval
	for _, w := range req.Windows {
		wiv := interval.Interval{Start: w.Start, End: w.End}
		for _, host := range expanded {
			if iv, ok := interval.Intersect(wiv, host); ok {
				candidates = append(candidates, iv)
			}
		}
	}
	if len(candidates) == 0 {
		return []Slot{}, nil
	}

	busy, err := c.busyIn(ctx, bounds.Start, bounds.End)
	if err != nil {
		return nil, err
	}

	duration := time.Duration(durMinutes) * time.Minute
	now := c.Now()

	var out []Slot
	for _, cand := range candidates {
		for _, free := range interval.Merge(interval.Subtract(cand, busy)) {
			out = append(out, chunk(free, duration, settings, now, outLoc)...)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Start.Equal(out[j].Start) {
			return out[i].End.Before(out[j].End)
		}
		return out[i].Start.Before(out[j].Start)
	})
	return dedupe(out), nil
}

func (c *Computer) busyIn(ctx context.Context, from, to time.Time) ([]interval.Interval, error) {
	bookings, err := c.Blockers.ConfirmedBusy(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("load confirmed bookings: %w", err)
	}
	events, err := c.Blockers.CalendarBusy(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("load calendar blockers: %w", err)
	}
	return append(bookings, events...), nil
}

// chunk cuts a free interval into consecutive slots of exactly duration,
// starting at the interval's start. A trailing remainder shorter than
// duration is dropped. Chunking never spans a removed blocker: each free
// interval starts its own run.
func chunk(free interval.Interval, duration time.Duration, settings Settings, now time.Time, loc *time.Location) []Slot {
	earliest := now.Add(time.Duration(settings.MinNoticeHours) * time.Hour)
	horizon := now.Add(time.Duration(settings.BookingWindowDays) * 24 * time.Hour)

	var out []Slot
	for s := free.Start; !s.Add(duration).After(free.End); s = s.Add(duration) {
		if s.Before(earliest) || s.After(horizon) {
			continue
		}
		out = append(out, Slot{Start: s.In(loc), End: s.Add(duration).In(loc)})
	}
	return out
}

// dedupe drops slots with identical (start, end) pairs, which arise from
// overlapping participant windows. Input must be sorted.
func dedupe(sorted []Slot) []Slot {
	out := sorted[:0]
	for _, s := range sorted {
		if len(out) > 0 {
			last := out[len(out)-1]
			if last.Start.Equal(s.Start) && last.End.Equal(s.End) {
				continue
			}
		}
		out = append(out, s)
	}
	if out == nil {
		out = []Slot{}
	}
	return out
}

// StillFree re-checks one candidate span against a busy list and the
// notice/horizon policy. The reservation coordinator runs this inside its
// exclusive transaction against the transaction's own view of the store.
func StillFree(slot Slot, busy []interval.Interval, settings Settings, now time.Time) bool {
	cand := interval.Interval{Start: slot.Start, End: slot.End}
	if !cand.Valid() {
		return false
	}
	for _, b := range busy {
		if cand.Overlaps(b) {
			return false
		}
	}
	earliest := now.Add(time.Duration(settings.MinNoticeHours) * time.Hour)
	horizon := now.Add(time.Duration(settings.BookingWindowDays) * 24 * time.Hour)
	return !slot.Start.Before(earliest) && !slot.Start.After(horizon)
}
