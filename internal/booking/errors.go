package booking

import (
	"errors"
	"fmt"
)

// ErrorKind discriminates booking failures
type ErrorKind string

const (
	KindSeatsTaken        ErrorKind = "SEATS_TAKEN"
	KindInvalidSeats      ErrorKind = "INVALID_SEATS"
	KindConcurrentBooking ErrorKind = "CONCURRENT_BOOKING"
	KindRejected          ErrorKind = "REJECTED"
	KindTransport         ErrorKind = "TRANSPORT"
	KindAlreadyInProgress ErrorKind = "ALREADY_IN_PROGRESS"
	KindEmptySelection    ErrorKind = "EMPTY_SELECTION"
	KindStale             ErrorKind = "STALE"
)

const (
	msgAlreadyInProgress = "A booking is already being submitted for this dialog."
	msgEmptySelection    = "Select at least one seat to book."
	msgStale             = "The booking dialog was closed before the backend answered."
	msgSeatsOutdated     = "The seat map could not be refreshed. Refresh it before booking again."
	msgUnexpectedReply   = "The backend did not confirm the booking."
)

// Backend error_type values
const (
	errorTypeSeatsTaken        = "seats_taken"
	errorTypeInvalidSeats      = "invalid_seats"
	errorTypeConcurrentBooking = "concurrent_booking"
)

// BookingError is the typed failure of a submission. AvailableSeats is
// the backend's list of seats still open, when it sent one.
type BookingError struct {
	Kind           ErrorKind `json:"kind"`
	Message        string    `json:"message"`
	AvailableSeats []int     `json:"available_seats,omitempty"`
	Err            error     `json:"-"`
}

func (e *BookingError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *BookingError) Unwrap() error {
	return e.Err
}

// IsKind reports whether err is a BookingError of the given kind
func IsKind(err error, kind ErrorKind) bool {
	var bookingErr *BookingError
	return errors.As(err, &bookingErr) && bookingErr.Kind == kind
}

// Conflict reports whether the seat map is known to have moved on
func (e *BookingError) Conflict() bool {
	switch e.Kind {
	case KindSeatsTaken, KindInvalidSeats, KindConcurrentBooking:
		return true
	}
	return false
}
