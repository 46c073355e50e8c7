package schederr

import (
	"errors"
	"fmt"
)

var (
	// ErrSlotUnavailable is returned when a reservation loses the race for a
	// slot. It is an expected outcome, not an infrastructure failure; callers
	// should re-fetch slots and let the participant pick again.
	ErrSlotUnavailable = errors.New("slot unavailable")

	ErrNotFound = errors.New("not found")
)

// ValidationError reports malformed or out-of-range caller input. It is
// surfaced before any computation and never retried.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Msg
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Msg)
}

func Invalid(field, msg string) error {
	return &ValidationError{Field: field, Msg: msg}
}

func Invalidf(field, format string, args ...any) error {
	return &ValidationError{Field: field, Msg: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
