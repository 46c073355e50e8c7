package gcal

import (
	"context"
	"time"
)

// Blocker is an externally sourced busy interval. Start and End are absolute;
// all-day events arrive already expanded to the full local day by the fetch.
type Blocker struct {
	ID     string    `json:"id"`
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	AllDay bool      `json:"all_day"`
}

// Cache is where fetched blockers are kept for the slot computer to read.
// The syncer is the only writer; it never runs inside a reservation
// transaction.
type Cache interface {
	ReplaceCalendarBlockers(ctx context.Context, blockers []Blocker) error
}
