package booking

import (
	"context"
	"time"

	"michael/internal/interval"
)

// Store opens reservation transactions. BeginExclusiveWrite must acquire the
// store's writer lock before any read, so concurrent reservation attempts are
// serialized against each other; an attempt that cannot acquire the lock
// within the store's bound fails rather than hangs. Readers (slot
// computation) are never blocked by it.
type Store interface {
	BeginExclusiveWrite(ctx context.Context) (Tx, error)
}

// Tx is one exclusive reservation transaction. Reads observe the
// transaction's own consistent view of the store. Rollback after Commit is a
// no-op, so it is safe to defer.
type Tx interface {
	ConfirmedBusy(ctx context.Context, from, to time.Time) ([]interval.Interval, error)
	CalendarBusy(ctx context.Context, from, to time.Time) ([]interval.Interval, error)
	Insert(ctx context.Context, b *Booking) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}
