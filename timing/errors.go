package timing

import "errors"

var (
	// ErrInvalidSchedule is returned when an event time is negative, NaN or
	// infinite, or when the event has no handler.
	ErrInvalidSchedule = errors.New("timing: invalid schedule")

	// ErrCausality is returned when an event is scheduled strictly before the
	// current simulated time.
	ErrCausality = errors.New("timing: causality violation")
)
