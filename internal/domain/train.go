package domain

import "errors"

var (
	ErrTrainNotFound    = errors.New("train not found")
	ErrInvalidInput     = errors.New("invalid input")
	ErrBookingNotFound  = errors.New("booking not found")
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrAdminKeyRequired = errors.New("admin api key required")
	ErrDialogNotFound   = errors.New("booking dialog not found")
	ErrDialogClosed     = errors.New("booking dialog closed")
)

// Train is a read-only train record as reported by the backend
type Train struct {
	TrainID        string `json:"train_id"`
	Name           string `json:"name"`
	Source         string `json:"source"`
	Destination    string `json:"destination"`
	TotalSeats     int    `json:"total_seats"`
	AvailableSeats int    `json:"available_seats"`
	DepartureTime  string `json:"departure_time,omitempty"`
	ArrivalTime    string `json:"arrival_time,omitempty"`
}

// CreateTrainRequest is the admin payload for adding a train.
// Field names follow the backend's train creation contract.
type CreateTrainRequest struct {
	TrainName     string `json:"train_name"`
	Source        string `json:"source"`
	Destination   string `json:"destination"`
	SeatCapacity  int    `json:"seat_capacity"`
	DepartureTime string `json:"arrival_time_at_source"`
	ArrivalTime   string `json:"arrival_time_at_destination"`
}
