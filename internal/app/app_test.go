package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"michael/internal/availability"
	"michael/internal/booking"
	"michael/internal/interval"
	"michael/internal/schederr"
	"michael/internal/slots"
)

// fakeStore backs the whole app in memory: repository, host config, busy
// spans, and the exclusive reservation transaction.
type fakeStore struct {
	rules    []availability.Rule
	loc      *time.Location
	settings slots.Settings

	mu       sync.Mutex
	bookings []booking.Booking
}

func (f *fakeStore) HostAvailability(ctx context.Context) ([]availability.Rule, *time.Location, error) {
	return f.rules, f.loc, nil
}

func (f *fakeStore) SchedulingSettings(ctx context.Context) (slots.Settings, error) {
	return f.settings, nil
}

func (f *fakeStore) HostTimezone(ctx context.Context) (string, error) {
	return f.loc.String(), nil
}

func (f *fakeStore) UpdateSettings(ctx context.Context, timezone string, settings slots.Settings) error {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return err
	}
	f.loc, f.settings = loc, settings
	return nil
}

func (f *fakeStore) ListRules(ctx context.Context) ([]availability.Rule, error) {
	return f.rules, nil
}

func (f *fakeStore) InsertRule(ctx context.Context, r *availability.Rule) error {
	r.ID = int64(len(f.rules) + 1)
	f.rules = append(f.rules, *r)
	return nil
}

func (f *fakeStore) UpdateRule(ctx context.Context, r availability.Rule) error {
	for i := range f.rules {
		if f.rules[i].ID == r.ID {
			f.rules[i] = r
			return nil
		}
	}
	return schederr.ErrNotFound
}

func (f *fakeStore) DeleteRule(ctx context.Context, id int64) error {
	for i := range f.rules {
		if f.rules[i].ID == id {
			f.rules = append(f.rules[:i], f.rules[i+1:]...)
			return nil
		}
	}
	return schederr.ErrNotFound
}

func (f *fakeStore) ListBookings(ctx context.Context, from, to time.Time, ranged bool) ([]booking.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]booking.Booking(nil), f.bookings...), nil
}

func (f *fakeStore) CancelBooking(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.bookings {
		if f.bookings[i].ID == id && f.bookings[i].Status == booking.StatusConfirmed {
			f.bookings[i].Status = booking.StatusCancelled
			return nil
		}
	}
	return schederr.ErrNotFound
}

func (f *fakeStore) ConfirmedBusy(ctx context.Context, from, to time.Time) ([]interval.Interval, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.confirmedBusyLocked(from, to), nil
}

func (f *fakeStore) confirmedBusyLocked(from, to time.Time) []interval.Interval {
	var out []interval.Interval
	for _, b := range f.bookings {
		if b.Status == booking.StatusConfirmed && b.Start.Before(to) && b.End.After(from) {
			out = append(out, interval.Interval{Start: b.Start, End: b.End})
		}
	}
	return out
}

func (f *fakeStore) CalendarBusy(ctx context.Context, from, to time.Time) ([]interval.Interval, error) {
	return nil, nil
}

func (f *fakeStore) BeginExclusiveWrite(ctx context.Context) (booking.Tx, error) {
	f.mu.Lock()
	return &fakeTx{store: f}, nil
}

type fakeTx struct {
	store    *fakeStore
	inserted []booking.Booking
	done     bool
}

func (t *fakeTx) ConfirmedBusy(ctx context.Context, from, to time.Time) ([]interval.Interval, error) {
	return t.store.confirmedBusyLocked(from, to), nil
}

func (t *fakeTx) CalendarBusy(ctx context.Context, from, to time.Time) ([]interval.Interval, error) {
	return nil, nil
}

func (t *fakeTx) Insert(ctx context.Context, b *booking.Booking) error {
	t.inserted = append(t.inserted, *b)
	return nil
}

func (t *fakeTx) Commit(ctx context.Context) error {
	t.store.bookings = append(t.store.bookings, t.inserted...)
	t.done = true
	t.store.mu.Unlock()
	return nil
}

func (t *fakeTx) Rollback(ctx context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	t.store.mu.Unlock()
	return nil
}

func testApp(t *testing.T) (*App, *fakeStore, time.Time) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	rules := make([]availability.Rule, 0, 5)
	for d := 1; d <= 5; d++ {
		rules = append(rules, availability.Rule{
			ID: int64(d), DayOfWeek: d,
			Start: availability.TimeOfDay{Hour: 9}, End: availability.TimeOfDay{Hour: 17},
		})
	}
	store := &fakeStore{
		rules:    rules,
		loc:      loc,
		settings: slots.Settings{MinNoticeHours: 2, BookingWindowDays: 14, DefaultDurationMinutes: 30},
	}
	now := time.Date(2026, 2, 2, 10, 0, 0, 0, loc) // Monday
	clock := func() time.Time { return now }

	return &App{
		Store:       store,
		Computer:    &slots.Computer{Host: store, Blockers: store, Now: clock},
		Coordinator: &booking.Coordinator{Store: store, Host: store, Now: clock},
	}, store, now
}

func noAuth() gin.HandlerFunc {
	return func(c *gin.Context) { c.Next() }
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestComputeSlotsEndpoint(t *testing.T) {
	a, _, _ := testApp(t)
	router := a.Router(noAuth())

	// Tuesday 12:00-15:00 New York.
	w := doJSON(t, router, http.MethodPost, "/api/slots", gin.H{
		"windows": []gin.H{{
			"start": "2026-02-03T12:00:00-05:00",
			"end":   "2026-02-03T15:00:00-05:00",
		}},
		"duration_minutes": 30,
		"timezone":         "America/New_York",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Count int          `json:"count"`
		Slots []slots.Slot `json:"slots"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Count != 6 {
		t.Fatalf("expected 6 slots, got %d", resp.Count)
	}
}

func TestComputeSlotsEndpointValidation(t *testing.T) {
	a, _, _ := testApp(t)
	router := a.Router(noAuth())

	w := doJSON(t, router, http.MethodPost, "/api/slots", gin.H{
		"windows": []gin.H{{
			"start": "2026-02-03T12:00:00-05:00",
			"end":   "2026-02-03T15:00:00-05:00",
		}},
		"duration_minutes": 3,
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
}

func TestReserveEndpoint(t *testing.T) {
	a, store, _ := testApp(t)
	router := a.Router(noAuth())

	body := gin.H{
		"start": "2026-02-03T12:00:00-05:00",
		"end":   "2026-02-03T12:30:00-05:00",
		"email": "sam@example.com",
		"name":  "Sam",
		"title": "Intro call",
	}
	w := doJSON(t, router, http.MethodPost, "/api/bookings", body)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var created booking.Booking
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if created.ID == "" || created.Status != booking.StatusConfirmed {
		t.Fatalf("unexpected booking %+v", created)
	}
	if len(store.bookings) != 1 {
		t.Fatalf("expected 1 stored booking, got %d", len(store.bookings))
	}

	// Same slot again: conflict with the machine-readable code.
	body["email"] = "other@example.com"
	w = doJSON(t, router, http.MethodPost, "/api/bookings", body)
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", w.Code, w.Body.String())
	}
	var conflict struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &conflict); err != nil {
		t.Fatalf("decode conflict: %v", err)
	}
	if conflict.Code != "slot_unavailable" {
		t.Fatalf("expected slot_unavailable code, got %q", conflict.Code)
	}
}

func TestReserveEndpointRejectsOutsideAvailability(t *testing.T) {
	a, store, _ := testApp(t)
	router := a.Router(noAuth())

	// Tuesday 20:00 is outside the 09:00-17:00 template.
	w := doJSON(t, router, http.MethodPost, "/api/bookings", gin.H{
		"start": "2026-02-03T20:00:00-05:00",
		"end":   "2026-02-03T20:30:00-05:00",
		"email": "sam@example.com",
	})
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", w.Code, w.Body.String())
	}
	if len(store.bookings) != 0 {
		t.Fatal("nothing must be written")
	}
}

func TestReserveEndpointValidation(t *testing.T) {
	a, _, _ := testApp(t)
	router := a.Router(noAuth())

	// Missing email fails request binding.
	w := doJSON(t, router, http.MethodPost, "/api/bookings", gin.H{
		"start": "2026-02-03T12:00:00-05:00",
		"end":   "2026-02-03T12:30:00-05:00",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
}

func TestCancelBookingEndpoint(t *testing.T) {
	a, store, now := testApp(t)
	router := a.Router(noAuth())

	store.bookings = append(store.bookings, booking.Booking{
		ID: "b1", Start: now.Add(24 * time.Hour), End: now.Add(24*time.Hour + 30*time.Minute),
		Status: booking.StatusConfirmed,
	})

	w := doJSON(t, router, http.MethodDelete, "/api/bookings/b1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if store.bookings[0].Status != booking.StatusCancelled {
		t.Fatal("expected cancelled status")
	}

	// Second cancel reports not found.
	w = doJSON(t, router, http.MethodDelete, "/api/bookings/b1", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestSettingsEndpoints(t *testing.T) {
	a, _, _ := testApp(t)
	router := a.Router(noAuth())

	w := doJSON(t, router, http.MethodPut, "/api/settings", gin.H{
		"timezone":                 "Europe/Berlin",
		"min_notice_hours":         6,
		"booking_window_days":      21,
		"default_duration_minutes": 45,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = doJSON(t, router, http.MethodGet, "/api/settings", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var got settingsPayload
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode settings: %v", err)
	}
	if got.Timezone != "Europe/Berlin" || got.BookingWindowDays != 21 {
		t.Fatalf("unexpected settings %+v", got)
	}

	// Out-of-range duration is rejected.
	w = doJSON(t, router, http.MethodPut, "/api/settings", gin.H{
		"timezone":                 "Europe/Berlin",
		"booking_window_days":      21,
		"default_duration_minutes": 900,
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestAvailabilityEndpoints(t *testing.T) {
	a, _, _ := testApp(t)
	router := a.Router(noAuth())

	w := doJSON(t, router, http.MethodPost, "/api/availability", []gin.H{
		{"day_of_week": 6, "start_time": "10:00", "end_time": "12:00"},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	// Inverted rule is rejected.
	w = doJSON(t, router, http.MethodPost, "/api/availability", []gin.H{
		{"day_of_week": 6, "start_time": "12:00", "end_time": "10:00"},
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}

	w = doJSON(t, router, http.MethodGet, "/api/availability", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var rules []rulePayload
	if err := json.Unmarshal(w.Body.Bytes(), &rules); err != nil {
		t.Fatalf("decode rules: %v", err)
	}
	if len(rules) != 6 {
		t.Fatalf("expected 6 rules, got %d", len(rules))
	}
}

func TestAuthMiddleware(t *testing.T) {
	a, _, _ := testApp(t)
	router := a.Router(AuthMiddleware([]string{"sekrit"}, ""))

	req := httptest.NewRequest(http.MethodGet, "/api/settings", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/settings", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with bad token, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/settings", nil)
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", "sekrit"))
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 with static token, got %d: %s", w.Code, w.Body.String())
	}

	// Participant routes stay open.
	body := bytes.NewBufferString(`{"windows":[{"start":"2026-02-03T12:00:00-05:00","end":"2026-02-03T13:00:00-05:00"}],"duration_minutes":30}`)
	req = httptest.NewRequest(http.MethodPost, "/api/slots", body)
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected open slots route, got %d: %s", w.Code, w.Body.String())
	}
}
