package domain

import "sort"

// SeatStatus is the backend-reported state of a seat
type SeatStatus string

const (
	SeatAvailable SeatStatus = "AVAILABLE"
	SeatBooked    SeatStatus = "BOOKED"
	SeatLocked    SeatStatus = "LOCKED"
)

// Seat is one cell of a seat matrix
type Seat struct {
	SeatNumber     int        `json:"seat_number"`
	Status         SeatStatus `json:"status"`
	IsUsersBooking bool       `json:"is_users_booking,omitempty"`
}

// Available reports whether the seat can be selected
func (s Seat) Available() bool {
	return s.Status == SeatAvailable
}

// SeatMatrix is the row/column layout of a train's seats
type SeatMatrix struct {
	TrainID        string   `json:"train_id"`
	Rows           [][]Seat `json:"seat_matrix"`
	TotalSeats     int      `json:"total_seats"`
	AvailableSeats int      `json:"available_seats"`
	PricePerSeat   *float64 `json:"price_per_seat,omitempty"`
}

// Seat looks up a seat by number
func (m *SeatMatrix) Seat(number int) (Seat, bool) {
	if m == nil {
		return Seat{}, false
	}
	for _, row := range m.Rows {
		for _, seat := range row {
			if seat.SeatNumber == number {
				return seat, true
			}
		}
	}
	return Seat{}, false
}

// AvailableNumbers returns the sorted numbers of all AVAILABLE seats
func (m *SeatMatrix) AvailableNumbers() []int {
	if m == nil {
		return nil
	}
	numbers := make([]int, 0)
	for _, row := range m.Rows {
		for _, seat := range row {
			if seat.Available() {
				numbers = append(numbers, seat.SeatNumber)
			}
		}
	}
	sort.Ints(numbers)
	return numbers
}
