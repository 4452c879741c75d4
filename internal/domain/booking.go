package domain

import (
	"context"
	"time"
)

// Booking is a reservation created by the backend. The client never
// constructs one locally; it only carries what the backend returned.
type Booking struct {
	BookingID   string    `json:"booking_id"`
	TrainID     string    `json:"train_id"`
	TrainName   string    `json:"train_name,omitempty"`
	Source      string    `json:"source,omitempty"`
	Destination string    `json:"destination,omitempty"`
	UserID      string    `json:"user_id,omitempty"`
	SeatNumbers []int     `json:"seat_numbers"`
	TotalPrice  float64   `json:"total_price"`
	Status      string    `json:"status"`
	BookingDate time.Time `json:"booking_date"`
}

// BookingConfirmed is emitted once the backend accepts a booking
type BookingConfirmed struct {
	EventID     string    `json:"event_id"`
	BookingID   string    `json:"booking_id"`
	TrainID     string    `json:"train_id"`
	UserID      string    `json:"user_id"`
	Username    string    `json:"username,omitempty"`
	SeatNumbers []int     `json:"seat_numbers"`
	TotalPrice  float64   `json:"total_price"`
	ConfirmedAt time.Time `json:"confirmed_at"`
}

// BookingPublisher fans confirmed bookings out to other services
type BookingPublisher interface {
	PublishBookingConfirmed(ctx context.Context, event *BookingConfirmed) error
}
