// Package booking owns the committed-reservation model and the atomic
// reservation protocol: at most one booking can ever occupy a given time
// range.
package booking

import (
	"time"

	"michael/internal/schederr"
)

type Status string

const (
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
)

// Details is the participant-supplied data attached to a booking.
type Details struct {
	Name        string `json:"name,omitempty"`
	Email       string `json:"email"`
	Phone       string `json:"phone,omitempty"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
}

func (d Details) Validate() error {
	if d.Email == "" {
		return schederr.Invalid("email", "required")
	}
	return nil
}

// Booking is a committed reservation. Only confirmed bookings block other
// slots; cancellation removes the blocking effect but keeps the row.
type Booking struct {
	ID        string    `json:"id"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Status    Status    `json:"status"`
	Details   Details   `json:"details"`
	CreatedAt time.Time `json:"created_at"`
}
