// Package app wires the scheduling core to its HTTP surface.
package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"michael/internal/availability"
	"michael/internal/booking"
	"michael/internal/schederr"
	"michael/internal/slots"
)

// Repository is the store surface the handlers need beyond the slot computer
// and reservation coordinator.
type Repository interface {
	HostTimezone(ctx context.Context) (string, error)
	SchedulingSettings(ctx context.Context) (slots.Settings, error)
	UpdateSettings(ctx context.Context, timezone string, settings slots.Settings) error

	ListRules(ctx context.Context) ([]availability.Rule, error)
	InsertRule(ctx context.Context, r *availability.Rule) error
	UpdateRule(ctx context.Context, r availability.Rule) error
	DeleteRule(ctx context.Context, id int64) error

	ListBookings(ctx context.Context, from, to time.Time, ranged bool) ([]booking.Booking, error)
	CancelBooking(ctx context.Context, id string) error
}

type App struct {
	Store       Repository
	Computer    *slots.Computer
	Coordinator *booking.Coordinator
	OAuth       *oauth2.Config // nil when Google Calendar is not configured
	Log         *zap.Logger
}

// Router builds the gin engine. Participant routes (slots, reserve) are open;
// host routes sit behind the bearer middleware.
func (a *App) Router(auth gin.HandlerFunc) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	// OAuth callback must stay outside the auth middleware.
	router.GET("/oauth2callback", a.GoogleOAuth2CallbackHandler)

	api := router.Group("/api")
	{
		api.POST("/slots", a.ComputeSlotsHandler)
		api.POST("/bookings", a.ReserveHandler)

		host := api.Group("", auth)
		{
			host.GET("/availability", a.ListAvailabilityHandler)
			host.POST("/availability", a.SetAvailabilityHandler)
			host.PUT("/availability/:rule_id", a.UpdateAvailabilityHandler)
			host.DELETE("/availability/:rule_id", a.DeleteAvailabilityHandler)
			host.GET("/settings", a.GetSettingsHandler)
			host.PUT("/settings", a.UpdateSettingsHandler)
			host.GET("/bookings", a.ListBookingsHandler)
			host.DELETE("/bookings/:id", a.CancelBookingHandler)
			host.GET("/calendar/auth", a.GoogleAuthHandler)
		}
	}

	return router
}

// abortError maps the core error taxonomy to HTTP statuses. The conflict
// path carries a machine-readable code so callers can tell a lost race from
// a generic failure.
func (a *App) abortError(c *gin.Context, err error) {
	switch {
	case schederr.IsValidation(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, schederr.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, schederr.ErrSlotUnavailable):
		c.JSON(http.StatusConflict, gin.H{"code": "slot_unavailable", "error": "slot no longer available"})
	default:
		a.log().Error("internal error", zap.Error(err), zap.String("path", c.FullPath()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func (a *App) log() *zap.Logger {
	if a.Log != nil {
		return a.Log
	}
	return zap.NewNop()
}
