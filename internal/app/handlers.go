package app

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"michael/internal/availability"
	"michael/internal/booking"
	"michael/internal/schederr"
	"michael/internal/slots"
)

type windowPayload struct {
	Start    string `json:"start" binding:"required"` // RFC3339
	End      string `json:"end" binding:"required"`
	Timezone string `json:"timezone,omitempty"`
}

type computeSlotsRequest struct {
	Windows         []windowPayload `json:"windows" binding:"required"`
	DurationMinutes int             `json:"duration_minutes"`
	Timezone        string          `json:"timezone,omitempty"`
}

// POST /api/slots
func (a *App) ComputeSlotsHandler(c *gin.Context) {
	var req computeSlotsRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	windows := make([]slots.Window, 0, len(req.Windows))
	for i, w := range req.Windows {
		start, err := time.Parse(time.RFC3339, w.Start)
		if err != nil {
			a.abortError(c, schederr.Invalidf("windows", "window %d: invalid start", i))
			return
		}
		end, err := time.Parse(time.RFC3339, w.End)
		if err != nil {
			a.abortError(c, schederr.Invalidf("windows", "window %d: invalid end", i))
			return
		}
		windows = append(windows, slots.Window{Start: start, End: end, Timezone: w.Timezone})
	}

	result, err := a.Computer.Compute(c.Request.Context(), slots.Request{
		Windows:         windows,
		DurationMinutes: req.DurationMinutes,
		Timezone:        req.Timezone,
	})
	if err != nil {
		a.abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"slots": result, "count": len(result)})
}

type reserveRequest struct {
	Start           string `json:"start" binding:"required"` // RFC3339
	End             string `json:"end" binding:"required"`
	DurationMinutes int    `json:"duration_minutes"`
	Name            string `json:"name,omitempty"`
	Email           string `json:"email" binding:"required,email"`
	Phone           string `json:"phone,omitempty"`
	Title           string `json:"title,omitempty"`
	Description     string `json:"description,omitempty"`
}

// POST /api/bookings
func (a *App) ReserveHandler(c *gin.Context) {
	var req reserveRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	start, err := time.Parse(time.RFC3339, req.Start)
	if err != nil {
		a.abortError(c, schederr.Invalid("start", "invalid RFC3339 datetime"))
		return
	}
	end, err := time.Parse(time.RFC3339, req.End)
	if err != nil {
		a.abortError(c, schederr.Invalid("end", "invalid RFC3339 datetime"))
		return
	}

	duration := req.DurationMinutes
	if duration == 0 {
		duration = int(end.Sub(start) / time.Minute)
	}
	slot := slots.Slot{Start: start, End: end}
	ctx := c.Request.Context()

	// The chosen slot must be one the read path would offer right now; a
	// fabricated span outside host availability never reaches the store.
	offered, err := a.Computer.Compute(ctx, slots.Request{
		Windows:         []slots.Window{{Start: start, End: end}},
		DurationMinutes: duration,
	})
	if err != nil {
		a.abortError(c, err)
		return
	}
	found := false
	for _, s := range offered {
		if s.Start.Equal(start) && s.End.Equal(end) {
			found = true
			break
		}
	}
	if !found {
		a.abortError(c, schederr.ErrSlotUnavailable)
		return
	}

	b, err := a.Coordinator.Reserve(ctx, slot, duration, booking.Details{
		Name:        req.Name,
		Email:       req.Email,
		Phone:       req.Phone,
		Title:       req.Title,
		Description: req.Description,
	})
	if err != nil {
		a.abortError(c, err)
		return
	}
	c.JSON(http.StatusCreated, b)
}

// GET /api/bookings?from=ISO&to=ISO
func (a *App) ListBookingsHandler(c *gin.Context) {
	fromStr := c.Query("from")
	toStr := c.Query("to")

	var from, to time.Time
	ranged := fromStr != "" && toStr != ""
	if ranged {
		var err error
		if from, err = time.Parse(time.RFC3339, fromStr); err != nil {
			a.abortError(c, schederr.Invalid("from", "invalid RFC3339 datetime"))
			return
		}
		if to, err = time.Parse(time.RFC3339, toStr); err != nil {
			a.abortError(c, schederr.Invalid("to", "invalid RFC3339 datetime"))
			return
		}
		if !from.Before(to) {
			a.abortError(c, schederr.Invalid("from", "must be before to"))
			return
		}
	}

	bookings, err := a.Store.ListBookings(c.Request.Context(), from, to, ranged)
	if err != nil {
		a.abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bookings": bookings, "count": len(bookings)})
}

// DELETE /api/bookings/:id
func (a *App) CancelBookingHandler(c *gin.Context) {
	if err := a.Store.CancelBooking(c.Request.Context(), c.Param("id")); err != nil {
		a.abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

type rulePayload struct {
	ID        int64  `json:"id,omitempty"`
	DayOfWeek int    `json:"day_of_week" binding:"required"`
	StartTime string `json:"start_time" binding:"required"` // HH:MM
	EndTime   string `json:"end_time" binding:"required"`
}

func (p rulePayload) rule() (availability.Rule, error) {
	start, err := availability.ParseTimeOfDay(p.StartTime)
	if err != nil {
		return availability.Rule{}, err
	}
	end, err := availability.ParseTimeOfDay(p.EndTime)
	if err != nil {
		return availability.Rule{}, err
	}
	r := availability.Rule{ID: p.ID, DayOfWeek: p.DayOfWeek, Start: start, End: end}
	return r, r.Validate()
}

func rulePayloads(rules []availability.Rule) []rulePayload {
	out := make([]rulePayload, 0, len(rules))
	for _, r := range rules {
		out = append(out, rulePayload{
			ID:        r.ID,
			DayOfWeek: r.DayOfWeek,
			StartTime: r.Start.String(),
			EndTime:   r.End.String(),
		})
	}
	return out
}

// GET /api/availability
func (a *App) ListAvailabilityHandler(c *gin.Context) {
	rules, err := a.Store.ListRules(c.Request.Context())
	if err != nil {
		a.abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, rulePayloads(rules))
}

// POST /api/availability
func (a *App) SetAvailabilityHandler(c *gin.Context) {
	var payload []rulePayload
	if err := c.BindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx := c.Request.Context()

	saved := make([]availability.Rule, 0, len(payload))
	for _, p := range payload {
		r, err := p.rule()
		if err != nil {
			a.abortError(c, err)
			return
		}
		if err := a.Store.InsertRule(ctx, &r); err != nil {
			a.abortError(c, err)
			return
		}
		saved = append(saved, r)
	}
	c.JSON(http.StatusCreated, rulePayloads(saved))
}

// PUT /api/availability/:rule_id
func (a *App) UpdateAvailabilityHandler(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("rule_id"), 10, 64)
	if err != nil {
		a.abortError(c, schederr.Invalid("rule_id", "must be an integer"))
		return
	}
	var payload rulePayload
	if err := c.BindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	r, err := payload.rule()
	if err != nil {
		a.abortError(c, err)
		return
	}
	r.ID = id
	if err := a.Store.UpdateRule(c.Request.Context(), r); err != nil {
		a.abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, rulePayloads([]availability.Rule{r})[0])
}

// DELETE /api/availability/:rule_id
func (a *App) DeleteAvailabilityHandler(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("rule_id"), 10, 64)
	if err != nil {
		a.abortError(c, schederr.Invalid("rule_id", "must be an integer"))
		return
	}
	if err := a.Store.DeleteRule(c.Request.Context(), id); err != nil {
		a.abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

type settingsPayload struct {
	Timezone               string `json:"timezone" binding:"required"`
	MinNoticeHours         int    `json:"min_notice_hours"`
	BookingWindowDays      int    `json:"booking_window_days" binding:"required"`
	DefaultDurationMinutes int    `json:"default_duration_minutes" binding:"required"`
}

// GET /api/settings
func (a *App) GetSettingsHandler(c *gin.Context) {
	ctx := c.Request.Context()
	settings, err := a.Store.SchedulingSettings(ctx)
	if err != nil {
		a.abortError(c, err)
		return
	}
	tz, err := a.Store.HostTimezone(ctx)
	if err != nil {
		a.abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, settingsPayload{
		Timezone:               tz,
		MinNoticeHours:         settings.MinNoticeHours,
		BookingWindowDays:      settings.BookingWindowDays,
		DefaultDurationMinutes: settings.DefaultDurationMinutes,
	})
}

// PUT /api/settings
func (a *App) UpdateSettingsHandler(c *gin.Context) {
	var payload settingsPayload
	if err := c.BindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	settings := slots.Settings{
		MinNoticeHours:         payload.MinNoticeHours,
		BookingWindowDays:      payload.BookingWindowDays,
		DefaultDurationMinutes: payload.DefaultDurationMinutes,
	}
	if err := settings.Validate(); err != nil {
		a.abortError(c, err)
		return
	}
	if _, err := time.LoadLocation(payload.Timezone); err != nil {
		a.abortError(c, schederr.Invalidf("timezone", "unknown timezone %q", payload.Timezone))
		return
	}
	if err := a.Store.UpdateSettings(c.Request.Context(), payload.Timezone, settings); err != nil {
		a.abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, payload)
}
