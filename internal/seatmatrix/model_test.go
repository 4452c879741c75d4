package seatmatrix

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"train-console/internal/apiclient"
	"train-console/internal/domain"
)

// stubBackend serves canned seat matrix bodies, one per call
type stubBackend struct {
	mu     sync.Mutex
	bodies []string
	err    error
	paths  []string
}

func (s *stubBackend) Get(_ context.Context, path string, out any) (*apiclient.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.paths = append(s.paths, path)
	if s.err != nil {
		return nil, s.err
	}
	body := s.bodies[0]
	if len(s.bodies) > 1 {
		s.bodies = s.bodies[1:]
	}
	if err := json.Unmarshal([]byte(body), out); err != nil {
		return nil, err
	}
	return &apiclient.Response{Status: 200, Body: []byte(body)}, nil
}

const twoRowMatrix = `{
	"train_id": 12,
	"seat_matrix": [
		[{"seat_number": 1, "status": "BOOKED"}, {"seat_number": 2, "status": "AVAILABLE"}, {"seat_number": 3, "status": "LOCKED"}],
		[{"seat_number": 4, "status": "AVAILABLE"}, {"seat_number": 5, "status": "AVAILABLE"}, {"seat_number": 6, "status": "BOOKED"}]
	],
	"total_seats": 6,
	"available_seats": 3,
	"price_per_seat": "30.00"
}`

func fetched(t *testing.T, bodies ...string) (*Model, *stubBackend) {
	t.Helper()

	backend := &stubBackend{bodies: bodies}
	model := New(backend)
	_, err := model.Fetch(context.Background(), "12")
	require.NoError(t, err)
	return model, backend
}

func TestFetch_DecodesMatrix(t *testing.T) {
	model, backend := fetched(t, twoRowMatrix)

	matrix := model.Matrix()
	require.NotNil(t, matrix)
	assert.Equal(t, "12", matrix.TrainID)
	assert.Len(t, matrix.Rows, 2)
	assert.Equal(t, 6, matrix.TotalSeats)
	assert.Equal(t, 3, matrix.AvailableSeats)
	assert.Equal(t, []int{2, 4, 5}, matrix.AvailableNumbers())
	require.NotNil(t, matrix.PricePerSeat)
	assert.Equal(t, 30.0, *matrix.PricePerSeat)
	assert.Equal(t, []string{"/trains/12/seats"}, backend.paths)
}

func TestFetch_DerivesMissingCounts(t *testing.T) {
	model, _ := fetched(t, `{"seat_matrix": [[{"seat_number": 1, "status": "AVAILABLE"}, {"seat_number": 2, "status": "BOOKED"}]]}`)

	matrix := model.Matrix()
	assert.Equal(t, "12", matrix.TrainID)
	assert.Equal(t, 2, matrix.TotalSeats)
	assert.Equal(t, 1, matrix.AvailableSeats)
	assert.Nil(t, matrix.PricePerSeat)

	_, ok := model.EstimateTotal()
	assert.False(t, ok)
}

func TestFetch_ReplacesMatrixAndClearsSelection(t *testing.T) {
	model, _ := fetched(t, twoRowMatrix, `{"seat_matrix": [[{"seat_number": 2, "status": "BOOKED"}, {"seat_number": 7, "status": "AVAILABLE"}]]}`)
	require.Equal(t, Selected, model.Toggle(2))

	matrix, err := model.Fetch(context.Background(), "12")
	require.NoError(t, err)

	assert.Empty(t, model.Selection())
	assert.Equal(t, []int{7}, matrix.AvailableNumbers())
	_, stillThere := matrix.Seat(4)
	assert.False(t, stillThere, "fetch must replace, not merge")
}

func TestFetch_FailureKeepsState(t *testing.T) {
	model, backend := fetched(t, twoRowMatrix)
	require.Equal(t, Selected, model.Toggle(5))

	backend.err = &apiclient.APIError{Kind: apiclient.KindNetwork, Message: "down"}
	_, err := model.Fetch(context.Background(), "12")

	var apiErr *apiclient.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, apiclient.KindNetwork, apiErr.Kind)
	assert.Equal(t, []int{5}, model.Selection())
	assert.NotNil(t, model.Matrix())
}

func TestFetch_RequiresTrainID(t *testing.T) {
	model := New(&stubBackend{})

	_, err := model.Fetch(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestToggle(t *testing.T) {
	tests := []struct {
		name      string
		seats     []int
		want      ToggleResult
		selection []int
	}{
		{name: "available_seat_is_selected", seats: []int{2}, want: Selected, selection: []int{2}},
		{name: "second_toggle_deselects", seats: []int{2, 2}, want: Deselected, selection: []int{}},
		{name: "booked_seat_is_unavailable", seats: []int{1}, want: Unavailable, selection: []int{}},
		{name: "locked_seat_is_unavailable", seats: []int{3}, want: Unavailable, selection: []int{}},
		{name: "missing_seat_is_unknown", seats: []int{99}, want: Unknown, selection: []int{}},
		{name: "booked_seat_keeps_selection", seats: []int{5, 1}, want: Unavailable, selection: []int{5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model, _ := fetched(t, twoRowMatrix)

			var got ToggleResult
			for _, n := range tt.seats {
				got = model.Toggle(n)
			}

			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.selection, model.Selection())
		})
	}
}

func TestToggle_BeforeFetchIsUnknown(t *testing.T) {
	model := New(&stubBackend{})
	assert.Equal(t, Unknown, model.Toggle(1))
}

func TestSelection_IsSubsetOfAvailable(t *testing.T) {
	model, _ := fetched(t, twoRowMatrix)
	rng := rand.New(rand.NewSource(7))

	for i := 0; i < 500; i++ {
		model.Toggle(rng.Intn(8))

		for _, n := range model.Selection() {
			seat, ok := model.Matrix().Seat(n)
			require.True(t, ok)
			require.Equal(t, domain.SeatAvailable, seat.Status, "seat %d selected while %s", n, seat.Status)
		}
	}
}

func TestSelection_IsSorted(t *testing.T) {
	model, _ := fetched(t, twoRowMatrix)
	model.Toggle(5)
	model.Toggle(2)
	model.Toggle(4)

	assert.Equal(t, []int{2, 4, 5}, model.Selection())

	model.Clear()
	assert.Empty(t, model.Selection())
}

func TestEstimate(t *testing.T) {
	model, _ := fetched(t, twoRowMatrix)
	model.Toggle(2)
	model.Toggle(4)

	assert.Equal(t, 100.0, model.Estimate(50))

	total, ok := model.EstimateTotal()
	require.True(t, ok)
	assert.Equal(t, 60.0, total)
}

func TestToggleResult_String(t *testing.T) {
	assert.Equal(t, "selected", Selected.String())
	assert.Equal(t, "deselected", Deselected.String())
	assert.Equal(t, "unavailable", Unavailable.String())
	assert.Equal(t, "unknown", Unknown.String())
}
