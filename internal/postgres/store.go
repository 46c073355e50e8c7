// Package postgres implements the persistence layer: host configuration,
// bookings, the calendar-blocker cache, and the exclusive-write reservation
// transaction.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"michael/internal/availability"
	"michael/internal/booking"
	"michael/internal/gcal"
	"michael/internal/interval"
	"michael/internal/schederr"
	"michael/internal/slots"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS host_settings (
	id INT PRIMARY KEY CHECK (id = 1),
	timezone TEXT NOT NULL DEFAULT 'UTC',
	min_notice_hours INT NOT NULL DEFAULT 12,
	booking_window_days INT NOT NULL DEFAULT 30,
	default_duration_minutes INT NOT NULL DEFAULT 30
);

INSERT INTO host_settings (id) VALUES (1) ON CONFLICT (id) DO NOTHING;

CREATE TABLE IF NOT EXISTS availability_rules (
	id BIGSERIAL PRIMARY KEY,
	day_of_week INT NOT NULL,
	start_time TEXT NOT NULL,
	end_time TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS bookings (
	id TEXT PRIMARY KEY,
	start_at TIMESTAMPTZ NOT NULL,
	end_at TIMESTAMPTZ NOT NULL,
	status TEXT NOT NULL,
	name TEXT NOT NULL DEFAULT '',
	email TEXT NOT NULL,
	phone TEXT NOT NULL DEFAULT '',
	title TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_bookings_range ON bookings (start_at, end_at) WHERE status = 'confirmed';

CREATE TABLE IF NOT EXISTS calendar_blockers (
	id TEXT PRIMARY KEY,
	start_at TIMESTAMPTZ NOT NULL,
	end_at TIMESTAMPTZ NOT NULL,
	all_day BOOLEAN NOT NULL DEFAULT FALSE,
	synced_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_calendar_blockers_range ON calendar_blockers (start_at, end_at);
`

// reserveLockKey is the advisory-lock key every reservation transaction
// takes. A single host means a single key serializes all writers.
const reserveLockKey = int64(0x6d696368616561)

type Store struct {
	pool        *pgxpool.Pool
	lockTimeout time.Duration
}

func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{pool: pool, lockTimeout: 5 * time.Second}, nil
}

// ---- host configuration (slots.HostSource) ----

func (s *Store) HostAvailability(ctx context.Context) ([]availability.Rule, *time.Location, error) {
	var tz string
	if err := s.pool.QueryRow(ctx, `SELECT timezone FROM host_settings WHERE id=1`).Scan(&tz); err != nil {
		return nil, nil, err
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, nil, fmt.Errorf("host timezone %q: %w", tz, err)
	}
	rules, err := s.ListRules(ctx)
	if err != nil {
		return nil, nil, err
	}
	return rules, loc, nil
}

func (s *Store) SchedulingSettings(ctx context.Context) (slots.Settings, error) {
	var out slots.Settings
	err := s.pool.QueryRow(ctx,
		`SELECT min_notice_hours, booking_window_days, default_duration_minutes FROM host_settings WHERE id=1`,
	).Scan(&out.MinNoticeHours, &out.BookingWindowDays, &out.DefaultDurationMinutes)
	return out, err
}

func (s *Store) HostTimezone(ctx context.Context) (string, error) {
	var tz string
	err := s.pool.QueryRow(ctx, `SELECT timezone FROM host_settings WHERE id=1`).Scan(&tz)
	return tz, err
}

func (s *Store) UpdateSettings(ctx context.Context, timezone string, settings slots.Settings) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE host_settings
		SET timezone=$1, min_notice_hours=$2, booking_window_days=$3, default_duration_minutes=$4
		WHERE id=1
	`, timezone, settings.MinNoticeHours, settings.BookingWindowDays, settings.DefaultDurationMinutes)
	return err
}

// ---- availability rules ----

func (s *Store) ListRules(ctx context.Context) ([]availability.Rule, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, day_of_week, start_time, end_time FROM availability_rules ORDER BY day_of_week, start_time`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []availability.Rule
	for rows.Next() {
		var (
			r          availability.Rule
			start, end string
		)
		if err := rows.Scan(&r.ID, &r.DayOfWeek, &start, &end); err != nil {
			return nil, err
		}
		if r.Start, err = availability.ParseTimeOfDay(start); err != nil {
			return nil, err
		}
		if r.End, err = availability.ParseTimeOfDay(end); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) InsertRule(ctx context.Context, r *availability.Rule) error {
	if err := r.Validate(); err != nil {
		return err
	}
	return s.pool.QueryRow(ctx, `
		INSERT INTO availability_rules (day_of_week, start_time, end_time)
		VALUES ($1, $2, $3) RETURNING id
	`, r.DayOfWeek, r.Start.String(), r.End.String()).Scan(&r.ID)
}

func (s *Store) UpdateRule(ctx context.Context, r availability.Rule) error {
	if err := r.Validate(); err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE availability_rules
		SET day_of_week=$1, start_time=$2, end_time=$3, updated_at=now()
		WHERE id=$4
	`, r.DayOfWeek, r.Start.String(), r.End.String(), r.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return schederr.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteRule(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM availability_rules WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return schederr.ErrNotFound
	}
	return nil
}

// ---- busy spans (slots.BlockerSource, read path) ----

func (s *Store) ConfirmedBusy(ctx context.Context, from, to time.Time) ([]interval.Interval, error) {
	return busySpans(ctx, s.pool, confirmedBusySQL, from, to)
}

func (s *Store) CalendarBusy(ctx context.Context, from, to time.Time) ([]interval.Interval, error) {
	return busySpans(ctx, s.pool, calendarBusySQL, from, to)
}

const confirmedBusySQL = `
	SELECT start_at, end_at FROM bookings
	WHERE status = 'confirmed' AND start_at < $2 AND end_at > $1
	ORDER BY start_at`

const calendarBusySQL = `
	SELECT start_at, end_at FROM calendar_blockers
	WHERE start_at < $2 AND end_at > $1
	ORDER BY start_at`

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func busySpans(ctx context.Context, q querier, sql string, from, to time.Time) ([]interval.Interval, error) {
	rows, err := q.Query(ctx, sql, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []interval.Interval
	for rows.Next() {
		var iv interval.Interval
		if err := rows.Scan(&iv.Start, &iv.End); err != nil {
			return nil, err
		}
		out = append(out, iv)
	}
	return out, rows.Err()
}

// ---- bookings ----

func (s *Store) ListBookings(ctx context.Context, from, to time.Time, ranged bool) ([]booking.Booking, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if ranged {
		rows, err = s.pool.Query(ctx, `
			SELECT id, start_at, end_at, status, name, email, phone, title, description, created_at
			FROM bookings WHERE start_at >= $1 AND start_at < $2 ORDER BY start_at
		`, from, to)
	} else {
		rows, err = s.pool.Query(ctx, `
			SELECT id, start_at, end_at, status, name, email, phone, title, description, created_at
			FROM bookings ORDER BY start_at
		`)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []booking.Booking
	for rows.Next() {
		var b booking.Booking
		if err := rows.Scan(&b.ID, &b.Start, &b.End, &b.Status,
			&b.Details.Name, &b.Details.Email, &b.Details.Phone,
			&b.Details.Title, &b.Details.Description, &b.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// CancelBooking flips a confirmed booking to cancelled, keeping the row as
// history. Cancelling an already-cancelled booking reports not-found, the
// same as a missing id.
func (s *Store) CancelBooking(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE bookings SET status='cancelled' WHERE id=$1 AND status='confirmed'`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return schederr.ErrNotFound
	}
	return nil
}

// ---- calendar blocker cache (gcal.Cache) ----

func (s *Store) ReplaceCalendarBlockers(ctx context.Context, blockers []gcal.Blocker) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM calendar_blockers`); err != nil {
		return err
	}
	for _, b := range blockers {
		if _, err := tx.Exec(ctx, `
			INSERT INTO calendar_blockers (id, start_at, end_at, all_day, synced_at)
			VALUES ($1, $2, $3, $4, now())
		`, b.ID, b.Start, b.End, b.AllDay); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// ---- exclusive reservation transaction (booking.Store) ----

// BeginExclusiveWrite opens a transaction and takes the reservation advisory
// lock before any read, so concurrent reservation attempts queue behind each
// other. lock_timeout bounds the wait; hitting it surfaces as an error, never
// a hang.
func (s *Store) BeginExclusiveWrite(ctx context.Context) (booking.Tx, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted, AccessMode: pgx.ReadWrite})
	if err != nil {
		return nil, err
	}
	if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.lockTimeout.Milliseconds())); err != nil {
		_ = tx.Rollback(ctx)
		return nil, err
	}
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, reserveLockKey); err != nil {
		_ = tx.Rollback(ctx)
		return nil, fmt.Errorf("acquire reservation lock: %w", err)
	}
	return &reserveTx{tx: tx}, nil
}

type reserveTx struct {
	tx pgx.Tx
}

func (r *reserveTx) ConfirmedBusy(ctx context.Context, from, to time.Time) ([]interval.Interval, error) {
	return busySpans(ctx, r.tx, confirmedBusySQL, from, to)
}

func (r *reserveTx) CalendarBusy(ctx context.Context, from, to time.Time) ([]interval.Interval, error) {
	return busySpans(ctx, r.tx, calendarBusySQL, from, to)
}

func (r *reserveTx) Insert(ctx context.Context, b *booking.Booking) error {
	_, err := r.tx.Exec(ctx, `
		INSERT INTO bookings (id, start_at, end_at, status, name, email, phone, title, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, b.ID, b.Start, b.End, b.Status,
		b.Details.Name, b.Details.Email, b.Details.Phone,
		b.Details.Title, b.Details.Description, b.CreatedAt)
	return err
}

func (r *reserveTx) Commit(ctx context.Context) error   { return r.tx.Commit(ctx) }
func (r *reserveTx) Rollback(ctx context.Context) error { return r.tx.Rollback(ctx) }
