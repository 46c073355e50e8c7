package booking

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"michael/internal/schederr"
	"michael/internal/slots"
)

// Coordinator commits one chosen slot as a booking. The read path may have
// computed the slot from stale data, so Reserve re-verifies the slot is still
// free inside an exclusive-write transaction and either commits or reports a
// conflict. Two concurrent attempts on overlapping slots can never both
// succeed.
type Coordinator struct {
	Store Store
	Host  slots.HostSource
	Now   func() time.Time
	Log   *zap.Logger
}

// Reserve records the booking, or returns schederr.ErrSlotUnavailable if the
// slot was taken between computation and commit. Any store failure rolls the
// transaction back and surfaces as an opaque error; nothing is retried here.
func (c *Coordinator) Reserve(ctx context.Context, slot slots.Slot, durationMinutes int, details Details) (*Booking, error) {
	if !slot.Start.Before(slot.End) {
		return nil, schederr.Invalid("slot", "start must be before end")
	}
	if durationMinutes < slots.MinDurationMinutes || durationMinutes > slots.MaxDurationMinutes {
		return nil, schederr.Invalidf("duration_minutes",
			"must be %d-%d, got %d", slots.MinDurationMinutes, slots.MaxDurationMinutes, durationMinutes)
	}
	if got := slot.End.Sub(slot.Start); got != time.Duration(durationMinutes)*time.Minute {
		return nil, schederr.Invalidf("slot", "span %v does not match duration %dm", got, durationMinutes)
	}
	if err := details.Validate(); err != nil {
		return nil, err
	}

	settings, err := c.Host.SchedulingSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("load scheduling settings: %w", err)
	}

	tx, err := c.Store.BeginExclusiveWrite(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin exclusive write: %w", err)
	}
	defer tx.Rollback(ctx)

	// Re-verify against the transaction's view, not the read-time one.
	busy, err := tx.ConfirmedBusy(ctx, slot.Start, slot.End)
	if err != nil {
		return nil, fmt.Errorf("load confirmed bookings: %w", err)
	}
	events, err := tx.CalendarBusy(ctx, slot.Start, slot.End)
	if err != nil {
		return nil, fmt.Errorf("load calendar blockers: %w", err)
	}
	busy = append(busy, events...)

	now := c.Now()
	if !slots.StillFree(slot, busy, settings, now) {
		c.log().Info("reservation conflict",
			zap.Time("start", slot.Start), zap.Time("end", slot.End))
		return nil, schederr.ErrSlotUnavailable
	}

	b := &Booking{
		ID:        uuid.NewString(),
		Start:     slot.Start.UTC(),
		End:       slot.End.UTC(),
		Status:    StatusConfirmed,
		Details:   details,
		CreatedAt: now.UTC(),
	}
	if err := tx.Insert(ctx, b); err != nil {
		return nil, fmt.Errorf("insert booking: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit booking: %w", err)
	}

	c.log().Info("booking committed",
		zap.String("id", b.ID), zap.Time("start", b.Start), zap.Time("end", b.End))
	return b, nil
}

func (c *Coordinator) log() *zap.Logger {
	if c.Log != nil {
		return c.Log
	}
	return zap.NewNop()
}
