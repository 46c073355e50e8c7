package gcal

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Syncer periodically refreshes the calendar-blocker cache. A failed refresh
// keeps the previous cache: stale blockers can only hide slots or surface a
// reservation conflict, never double-book, because every reservation
// re-validates bookings inside its own transaction.
type Syncer struct {
	Fetcher  Fetcher
	Cache    Cache
	Interval time.Duration
	// HorizonDays bounds how far ahead events are fetched; it should cover at
	// least the booking window.
	HorizonDays int
	Now         func() time.Time
	Log         *zap.Logger
}

// Run refreshes immediately and then on every tick until ctx is cancelled.
func (s *Syncer) Run(ctx context.Context) {
	if err := s.RefreshOnce(ctx); err != nil {
		s.log().Warn("calendar sync failed", zap.Error(err))
	}

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.RefreshOnce(ctx); err != nil {
				s.log().Warn("calendar sync failed", zap.Error(err))
			}
		}
	}
}

// RefreshOnce fetches busy events over the horizon and replaces the cache.
func (s *Syncer) RefreshOnce(ctx context.Context) error {
	now := time.Now()
	if s.Now != nil {
		now = s.Now()
	}
	horizon := s.HorizonDays
	if horizon <= 0 {
		horizon = 60
	}

	from := now.Add(-24 * time.Hour) // keep ongoing events visible
	to := now.AddDate(0, 0, horizon)

	blockers, err := s.Fetcher.BusyEvents(ctx, from, to)
	if err != nil {
		return err
	}
	if err := s.Cache.ReplaceCalendarBlockers(ctx, blockers); err != nil {
		return err
	}
	s.log().Info("calendar blockers refreshed", zap.Int("count", len(blockers)))
	return nil
}

func (s *Syncer) log() *zap.Logger {
	if s.Log != nil {
		return s.Log
	}
	return zap.NewNop()
}
