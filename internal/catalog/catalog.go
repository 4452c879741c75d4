// Package catalog wraps the read-mostly backend endpoints: train search
// and detail, booking history, and the admin train inventory.
package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"train-console/internal/apiclient"
	"train-console/internal/domain"
)

// Backend is the subset of the API client the catalog needs
type Backend interface {
	Get(ctx context.Context, path string, out any) (*apiclient.Response, error)
	Post(ctx context.Context, path string, body, out any) (*apiclient.Response, error)
	Delete(ctx context.Context, path string, out any) (*apiclient.Response, error)
}

// BookingDetail is one booking with its journey times
type BookingDetail struct {
	domain.Booking
	NumSeats      int    `json:"num_seats"`
	DepartureTime string `json:"departure_time,omitempty"`
	ArrivalTime   string `json:"arrival_time,omitempty"`
}

// Service exposes the catalog operations
type Service struct {
	backend Backend
}

// New creates a catalog service
func New(backend Backend) *Service {
	return &Service{backend: backend}
}

// station decodes either a plain station name or the admin listing's
// {station_code, station_name} object
type station struct {
	Code string
	Name string
}

func (s *station) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &s.Name)
	}
	var obj struct {
		Code string `json:"station_code"`
		Name string `json:"station_name"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("station: %w", err)
	}
	s.Code, s.Name = obj.Code, obj.Name
	if s.Name == "" {
		s.Name = s.Code
	}
	return nil
}

type trainRecord struct {
	TrainID        domain.FlexString `json:"train_id"`
	Name           string            `json:"name"`
	TrainName      string            `json:"train_name"`
	Source         station           `json:"source"`
	Destination    station           `json:"destination"`
	TotalSeats     int               `json:"total_seats"`
	SeatCapacity   int               `json:"seat_capacity"`
	AvailableSeats int               `json:"available_seats"`
	DepartureTime  string            `json:"departure_time"`
	ArrivalTime    string            `json:"arrival_time"`
}

func (r trainRecord) toDomain() domain.Train {
	t := domain.Train{
		TrainID:        string(r.TrainID),
		Name:           r.Name,
		Source:         r.Source.Name,
		Destination:    r.Destination.Name,
		TotalSeats:     r.TotalSeats,
		AvailableSeats: r.AvailableSeats,
		DepartureTime:  r.DepartureTime,
		ArrivalTime:    r.ArrivalTime,
	}
	if t.Name == "" {
		t.Name = r.TrainName
	}
	if t.TotalSeats == 0 {
		t.TotalSeats = r.SeatCapacity
	}
	return t
}

type bookingTrain struct {
	TrainID     domain.FlexString `json:"train_id"`
	Name        string            `json:"name"`
	Source      string            `json:"source"`
	Destination string            `json:"destination"`
}

type bookingRecord struct {
	BookingID   domain.FlexString `json:"booking_id"`
	Train       *bookingTrain     `json:"train"`
	TrainID     domain.FlexString `json:"train_id"`
	TrainName   string            `json:"train_name"`
	Source      string            `json:"source"`
	Destination string            `json:"destination"`
	UserID      domain.FlexString `json:"user_id"`
	SeatNumbers []int             `json:"seat_numbers"`
	NumSeats    int               `json:"num_seats"`
	NoOfSeats   int               `json:"no_of_seats"`
	TotalPrice  domain.FlexFloat  `json:"total_price"`
	Status      string            `json:"status"`
	BookingDate string            `json:"booking_date"`
	BookingTime string            `json:"booking_time"`
	Departure   string            `json:"arrival_time_at_source"`
	Arrival     string            `json:"arrival_time_at_destination"`
}

func (r bookingRecord) toDetail() BookingDetail {
	d := BookingDetail{
		Booking: domain.Booking{
			BookingID:   string(r.BookingID),
			TrainID:     string(r.TrainID),
			TrainName:   r.TrainName,
			Source:      r.Source,
			Destination: r.Destination,
			UserID:      string(r.UserID),
			SeatNumbers: r.SeatNumbers,
			TotalPrice:  float64(r.TotalPrice),
			Status:      r.Status,
		},
		NumSeats:      r.NumSeats,
		DepartureTime: r.Departure,
		ArrivalTime:   r.Arrival,
	}
	if r.Train != nil {
		d.TrainID = string(r.Train.TrainID)
		d.TrainName = r.Train.Name
		d.Source = r.Train.Source
		d.Destination = r.Train.Destination
	}
	if d.NumSeats == 0 {
		d.NumSeats = r.NoOfSeats
	}
	if d.NumSeats == 0 {
		d.NumSeats = len(r.SeatNumbers)
	}
	if d.Status == "" {
		d.Status = "CONFIRMED"
	}

	stamp := r.BookingDate
	if stamp == "" {
		stamp = r.BookingTime
	}
	if stamp != "" {
		if t, err := domain.ParseBackendTime(stamp); err == nil {
			d.BookingDate = t
		}
	}
	return d
}

// Search lists trains running from source to destination
func (s *Service) Search(ctx context.Context, source, destination string) ([]domain.Train, error) {
	source = strings.TrimSpace(source)
	destination = strings.TrimSpace(destination)
	if source == "" || destination == "" {
		return nil, fmt.Errorf("source and destination are required: %w", domain.ErrInvalidInput)
	}

	query := url.Values{}
	query.Set("source", source)
	query.Set("destination", destination)

	var records []trainRecord
	if _, err := s.backend.Get(ctx, "/trains/availability?"+query.Encode(), &records); err != nil {
		return nil, fmt.Errorf("search trains: %w", err)
	}
	return toTrains(records), nil
}

// Train returns one train
func (s *Service) Train(ctx context.Context, trainID string) (*domain.Train, error) {
	if trainID == "" {
		return nil, fmt.Errorf("train id is required: %w", domain.ErrInvalidInput)
	}

	var record trainRecord
	if _, err := s.backend.Get(ctx, "/trains/"+url.PathEscape(trainID), &record); err != nil {
		return nil, notFound(err, domain.ErrTrainNotFound, "get train")
	}
	train := record.toDomain()
	if train.TrainID == "" {
		train.TrainID = trainID
	}
	return &train, nil
}

// AllTrains lists the whole inventory. Requires the admin key.
func (s *Service) AllTrains(ctx context.Context) ([]domain.Train, error) {
	var records []trainRecord
	if _, err := s.backend.Get(ctx, "/admin/trains", &records); err != nil {
		return nil, fmt.Errorf("list trains: %w", err)
	}
	return toTrains(records), nil
}

// CreateTrain adds a train. Requires the admin key.
func (s *Service) CreateTrain(ctx context.Context, req domain.CreateTrainRequest) (*domain.Train, error) {
	req.TrainName = strings.TrimSpace(req.TrainName)
	req.Source = strings.TrimSpace(req.Source)
	req.Destination = strings.TrimSpace(req.Destination)

	switch {
	case req.TrainName == "":
		return nil, fmt.Errorf("train name is required: %w", domain.ErrInvalidInput)
	case req.Source == "" || req.Destination == "":
		return nil, fmt.Errorf("source and destination are required: %w", domain.ErrInvalidInput)
	case strings.EqualFold(req.Source, req.Destination):
		return nil, fmt.Errorf("source and destination must differ: %w", domain.ErrInvalidInput)
	case req.SeatCapacity <= 0:
		return nil, fmt.Errorf("seat capacity must be positive: %w", domain.ErrInvalidInput)
	}

	var out struct {
		Message      string            `json:"message"`
		TrainID      domain.FlexString `json:"train_id"`
		TrainDetails trainRecord       `json:"train_details"`
	}
	if _, err := s.backend.Post(ctx, "/trains/create", req, &out); err != nil {
		return nil, fmt.Errorf("create train: %w", err)
	}

	train := out.TrainDetails.toDomain()
	train.TrainID = string(out.TrainID)
	if train.Name == "" {
		train.Name = req.TrainName
		train.Source = req.Source
		train.Destination = req.Destination
		train.TotalSeats = req.SeatCapacity
	}
	if train.AvailableSeats == 0 {
		train.AvailableSeats = train.TotalSeats
	}
	return &train, nil
}

// DeleteTrain removes a train and returns the backend's confirmation.
// Requires the admin key.
func (s *Service) DeleteTrain(ctx context.Context, trainID string) (string, error) {
	if trainID == "" {
		return "", fmt.Errorf("train id is required: %w", domain.ErrInvalidInput)
	}

	var out struct {
		Message string `json:"message"`
	}
	if _, err := s.backend.Delete(ctx, "/admin/trains/"+url.PathEscape(trainID), &out); err != nil {
		return "", notFound(err, domain.ErrTrainNotFound, "delete train")
	}
	return out.Message, nil
}

// UserBookings lists the bookings of the logged-in user, newest first
// as the backend orders them
func (s *Service) UserBookings(ctx context.Context) ([]BookingDetail, error) {
	var records []bookingRecord
	if _, err := s.backend.Get(ctx, "/user/bookings", &records); err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}

	bookings := make([]BookingDetail, 0, len(records))
	for _, r := range records {
		bookings = append(bookings, r.toDetail())
	}
	return bookings, nil
}

// BookingDetail returns one booking of the logged-in user
func (s *Service) BookingDetail(ctx context.Context, trainID, bookingID string) (*BookingDetail, error) {
	if trainID == "" || bookingID == "" {
		return nil, fmt.Errorf("train id and booking id are required: %w", domain.ErrInvalidInput)
	}

	path := "/trains/" + url.PathEscape(trainID) + "/booking/" + url.PathEscape(bookingID)
	var record bookingRecord
	if _, err := s.backend.Get(ctx, path, &record); err != nil {
		return nil, notFound(err, domain.ErrBookingNotFound, "get booking")
	}

	detail := record.toDetail()
	if detail.TrainID == "" {
		detail.TrainID = trainID
	}
	return &detail, nil
}

func toTrains(records []trainRecord) []domain.Train {
	trains := make([]domain.Train, 0, len(records))
	for _, r := range records {
		trains = append(trains, r.toDomain())
	}
	return trains
}

// notFound tags a backend 404 with sentinel, keeping the APIError reachable
func notFound(err, sentinel error, op string) error {
	var apiErr *apiclient.APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
		return fmt.Errorf("%s: %w: %w", op, sentinel, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
