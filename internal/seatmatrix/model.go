// Package seatmatrix holds the seat layout of one train and the
// client-side seat selection made against it.
package seatmatrix

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"sync"

	"train-console/internal/apiclient"
	"train-console/internal/domain"
)

// ToggleResult reports what a toggle did to the selection
type ToggleResult int

const (
	Selected ToggleResult = iota
	Deselected
	Unavailable
	Unknown
)

func (r ToggleResult) String() string {
	switch r {
	case Selected:
		return "selected"
	case Deselected:
		return "deselected"
	case Unavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// Backend is the subset of the API client the model needs
type Backend interface {
	Get(ctx context.Context, path string, out any) (*apiclient.Response, error)
}

// seatMatrixResponse is the backend seat map. Ids and prices arrive as
// either strings or numbers.
type seatMatrixResponse struct {
	TrainID        domain.FlexString `json:"train_id"`
	SeatMatrix     [][]domain.Seat   `json:"seat_matrix"`
	TotalSeats     int               `json:"total_seats"`
	AvailableSeats *int              `json:"available_seats"`
	PricePerSeat   *domain.FlexFloat `json:"price_per_seat"`
}

// Model is the latest fetched matrix plus the selection made on it.
// A fetch replaces the matrix wholesale and empties the selection.
type Model struct {
	backend Backend

	mu       sync.RWMutex
	matrix   *domain.SeatMatrix
	selected map[int]struct{}
	fetchSeq uint64
	applied  uint64
}

// New creates an empty model
func New(backend Backend) *Model {
	return &Model{
		backend:  backend,
		selected: make(map[int]struct{}),
	}
}

// Fetch loads the seat matrix of trainID and replaces the current one.
// On failure the previous matrix and selection are left as they were.
func (m *Model) Fetch(ctx context.Context, trainID string) (*domain.SeatMatrix, error) {
	if trainID == "" {
		return nil, fmt.Errorf("train id is required: %w", domain.ErrInvalidInput)
	}

	m.mu.Lock()
	m.fetchSeq++
	seq := m.fetchSeq
	m.mu.Unlock()

	var resp seatMatrixResponse
	if _, err := m.backend.Get(ctx, "/trains/"+url.PathEscape(trainID)+"/seats", &resp); err != nil {
		return nil, fmt.Errorf("fetch seat matrix: %w", err)
	}

	matrix := resp.toDomain(trainID)

	m.mu.Lock()
	defer m.mu.Unlock()

	// An older fetch finishing late must not overwrite a newer one
	if seq < m.applied {
		return m.matrix, nil
	}
	m.applied = seq
	m.matrix = matrix
	m.selected = make(map[int]struct{})

	return matrix, nil
}

// Matrix returns the latest fetched matrix, nil before the first fetch.
// Callers must treat it as read-only.
func (m *Model) Matrix() *domain.SeatMatrix {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.matrix
}

// Toggle selects an available seat or deselects a selected one.
// Seats that are not AVAILABLE leave the selection untouched.
func (m *Model) Toggle(seatNumber int) ToggleResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	seat, ok := m.matrix.Seat(seatNumber)
	if !ok {
		return Unknown
	}
	if _, isSelected := m.selected[seatNumber]; isSelected {
		delete(m.selected, seatNumber)
		return Deselected
	}
	if !seat.Available() {
		return Unavailable
	}
	m.selected[seatNumber] = struct{}{}
	return Selected
}

// Selection returns the selected seat numbers in ascending order
func (m *Model) Selection() []int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	numbers := make([]int, 0, len(m.selected))
	for n := range m.selected {
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)
	return numbers
}

// Clear empties the selection
func (m *Model) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.selected = make(map[int]struct{})
}

// UnitPrice is the per-seat price reported with the matrix, if any
func (m *Model) UnitPrice() (float64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.matrix == nil || m.matrix.PricePerSeat == nil {
		return 0, false
	}
	return *m.matrix.PricePerSeat, true
}

// Estimate is the display-only price of the selection at unitPrice.
// The backend total replaces it once a booking is confirmed.
func (m *Model) Estimate(unitPrice float64) float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return float64(len(m.selected)) * unitPrice
}

// EstimateTotal estimates the selection at the backend unit price. It
// reports false when the backend did not send one.
func (m *Model) EstimateTotal() (float64, bool) {
	price, ok := m.UnitPrice()
	if !ok {
		return 0, false
	}
	return m.Estimate(price), true
}

func (r *seatMatrixResponse) toDomain(requested string) *domain.SeatMatrix {
	matrix := &domain.SeatMatrix{
		TrainID:    string(r.TrainID),
		Rows:       r.SeatMatrix,
		TotalSeats: r.TotalSeats,
	}
	if matrix.TrainID == "" {
		matrix.TrainID = requested
	}
	if matrix.Rows == nil {
		matrix.Rows = [][]domain.Seat{}
	}

	if r.AvailableSeats != nil {
		matrix.AvailableSeats = *r.AvailableSeats
	} else {
		matrix.AvailableSeats = len(matrix.AvailableNumbers())
	}
	if matrix.TotalSeats == 0 {
		for _, row := range matrix.Rows {
			matrix.TotalSeats += len(row)
		}
	}
	if r.PricePerSeat != nil {
		price := float64(*r.PricePerSeat)
		matrix.PricePerSeat = &price
	}

	return matrix
}
