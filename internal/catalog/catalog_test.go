package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"train-console/internal/apiclient"
	"train-console/internal/domain"
	"train-console/internal/testutil"
)

func newCatalog(t *testing.T, session *domain.Session) (*Service, *testutil.FakeBackend) {
	t.Helper()

	backend := testutil.NewFakeBackend(t)
	var creds apiclient.CredentialSource
	if session != nil {
		creds = testutil.SessionCredentials(session)
	}
	return New(testutil.NewClient(backend.URL(), creds)), backend
}

func TestSearch(t *testing.T) {
	svc, backend := newCatalog(t, testutil.NewTestSession())
	backend.AddTrain("12951", "Rajdhani Express", "DELHI", "MUMBAI", 12)
	backend.AddTrain("12001", "Shatabdi Express", "DELHI", "BHOPAL", 12)

	trains, err := svc.Search(context.Background(), " delhi ", "mumbai")

	require.NoError(t, err)
	require.Len(t, trains, 1)
	assert.Equal(t, "12951", trains[0].TrainID)
	assert.Equal(t, "Rajdhani Express", trains[0].Name)
	assert.Equal(t, "DELHI", trains[0].Source)
	assert.Equal(t, 12, trains[0].AvailableSeats)

	requests := backend.Requests("/trains/availability")
	require.Len(t, requests, 1)
	assert.Contains(t, requests[0].Authorization, "Bearer ")
}

func TestSearch_NoMatchesIsEmpty(t *testing.T) {
	svc, _ := newCatalog(t, testutil.NewTestSession())

	trains, err := svc.Search(context.Background(), "DELHI", "GOA")

	require.NoError(t, err)
	assert.NotNil(t, trains)
	assert.Empty(t, trains)
}

func TestSearch_ValidatesLocally(t *testing.T) {
	svc, backend := newCatalog(t, testutil.NewTestSession())

	tests := []struct {
		name        string
		source      string
		destination string
	}{
		{name: "empty_source", source: "", destination: "MUMBAI"},
		{name: "blank_destination", source: "DELHI", destination: "  "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Search(context.Background(), tt.source, tt.destination)
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
		})
	}
	assert.Empty(t, backend.Requests("/trains"))
}

func TestTrain(t *testing.T) {
	svc, backend := newCatalog(t, testutil.NewTestSession())
	backend.AddTrain("12951", "Rajdhani Express", "DELHI", "MUMBAI", 8)
	backend.SetSeatStatus("12951", 1, domain.SeatBooked)

	train, err := svc.Train(context.Background(), "12951")

	require.NoError(t, err)
	assert.Equal(t, domain.Train{
		TrainID:        "12951",
		Name:           "Rajdhani Express",
		Source:         "DELHI",
		Destination:    "MUMBAI",
		TotalSeats:     8,
		AvailableSeats: 7,
		DepartureTime:  "08:00:00",
		ArrivalTime:    "20:00:00",
	}, *train)
}

func TestTrain_NotFound(t *testing.T) {
	svc, _ := newCatalog(t, testutil.NewTestSession())

	_, err := svc.Train(context.Background(), "404")

	assert.ErrorIs(t, err, domain.ErrTrainNotFound)
	var apiErr *apiclient.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Equal(t, "Train not found", apiErr.Message)
}

func TestAdminTrainLifecycle(t *testing.T) {
	admin := testutil.NewTestSession(testutil.WithAdmin("test-admin-key"))
	svc, backend := newCatalog(t, admin)
	ctx := context.Background()

	created, err := svc.CreateTrain(ctx, domain.CreateTrainRequest{
		TrainName:     "Duronto",
		Source:        "PUNE",
		Destination:   "GOA",
		SeatCapacity:  30,
		DepartureTime: "06:15:00",
		ArrivalTime:   "14:40:00",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, created.TrainID)
	assert.Equal(t, "Duronto", created.Name)
	assert.Equal(t, 30, created.TotalSeats)
	assert.Equal(t, 30, created.AvailableSeats)

	trains, err := svc.AllTrains(ctx)
	require.NoError(t, err)
	require.Len(t, trains, 1)
	assert.Equal(t, "PUNE", trains[0].Source, "nested station objects decode to names")
	assert.Equal(t, "GOA", trains[0].Destination)

	message, err := svc.DeleteTrain(ctx, created.TrainID)
	require.NoError(t, err)
	assert.Contains(t, message, "successfully deleted")

	_, err = svc.DeleteTrain(ctx, created.TrainID)
	assert.ErrorIs(t, err, domain.ErrTrainNotFound)

	for _, r := range backend.Requests("/") {
		assert.Equal(t, "Api-Key test-admin-key", r.Authorization, "%s %s", r.Method, r.Path)
	}
}

func TestCreateTrain_ValidatesLocally(t *testing.T) {
	svc, backend := newCatalog(t, testutil.NewTestSession(testutil.WithAdmin("test-admin-key")))

	valid := domain.CreateTrainRequest{TrainName: "Duronto", Source: "PUNE", Destination: "GOA", SeatCapacity: 30}

	tests := []struct {
		name   string
		mutate func(*domain.CreateTrainRequest)
	}{
		{name: "missing_name", mutate: func(r *domain.CreateTrainRequest) { r.TrainName = " " }},
		{name: "missing_source", mutate: func(r *domain.CreateTrainRequest) { r.Source = "" }},
		{name: "same_stations", mutate: func(r *domain.CreateTrainRequest) { r.Destination = "pune" }},
		{name: "no_seats", mutate: func(r *domain.CreateTrainRequest) { r.SeatCapacity = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid
			tt.mutate(&req)

			_, err := svc.CreateTrain(context.Background(), req)
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
		})
	}
	assert.Empty(t, backend.Requests("/trains/create"))
}

func TestAdminCallsNeedAdminKey(t *testing.T) {
	svc, backend := newCatalog(t, testutil.NewTestSession())

	_, err := svc.AllTrains(context.Background())

	assert.ErrorIs(t, err, domain.ErrAdminKeyRequired)
	assert.Empty(t, backend.Requests("/admin"))
}

func TestUserBookingsAndDetail(t *testing.T) {
	session := testutil.NewTestSession()
	svc, backend := newCatalog(t, session)
	backend.AddTrain("12951", "Rajdhani Express", "DELHI", "MUMBAI", 12)
	ctx := context.Background()

	client := testutil.NewClient(backend.URL(), testutil.SessionCredentials(session))
	var booked map[string]any
	_, err := client.Post(ctx, "/trains/12951/book", map[string]any{
		"user_id":      session.UserID,
		"seat_numbers": []int{3, 4},
	}, &booked)
	require.NoError(t, err)

	bookings, err := svc.UserBookings(ctx)
	require.NoError(t, err)
	require.Len(t, bookings, 1)

	b := bookings[0]
	assert.Equal(t, booked["booking_id"], b.BookingID)
	assert.Equal(t, "12951", b.TrainID)
	assert.Equal(t, "Rajdhani Express", b.TrainName)
	assert.Equal(t, []int{3, 4}, b.SeatNumbers)
	assert.Equal(t, 2, b.NumSeats)
	assert.Equal(t, 1000.0, b.TotalPrice)
	assert.Equal(t, "CONFIRMED", b.Status)
	assert.WithinDuration(t, time.Now(), b.BookingDate, time.Minute)

	detail, err := svc.BookingDetail(ctx, "12951", b.BookingID)
	require.NoError(t, err)
	assert.Equal(t, session.UserID, detail.UserID)
	assert.Equal(t, "DELHI", detail.Source)
	assert.Equal(t, "08:00:00", detail.DepartureTime)
	assert.Equal(t, "20:00:00", detail.ArrivalTime)
	assert.Equal(t, 2, detail.NumSeats)

	_, err = svc.BookingDetail(ctx, "12951", "999")
	assert.ErrorIs(t, err, domain.ErrBookingNotFound)
}

func TestStation_DecodesBothShapes(t *testing.T) {
	var records []trainRecord
	body := `[
		{"train_id": 1, "train_name": "Local", "source": "DELHI", "destination": {"station_code": "BCT", "station_name": ""}, "seat_capacity": 10}
	]`
	require.NoError(t, json.Unmarshal([]byte(body), &records))

	trains := toTrains(records)
	require.Len(t, trains, 1)
	assert.Equal(t, "1", trains[0].TrainID)
	assert.Equal(t, "Local", trains[0].Name)
	assert.Equal(t, "DELHI", trains[0].Source)
	assert.Equal(t, "BCT", trains[0].Destination)
	assert.Equal(t, 10, trains[0].TotalSeats)
}
