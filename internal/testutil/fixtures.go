package testutil

import (
	"fmt"
	"sync/atomic"
	"time"

	"train-console/internal/domain"
)

// Counter for generating unique IDs
var idCounter atomic.Int64

// nextID generates a unique ID for test fixtures
func nextID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, idCounter.Add(1))
}

// SessionOptions allows customizing session fixture creation
type SessionOptions struct {
	UserID      string
	Username    string
	IsAdmin     bool
	AdminAPIKey string
	TokenExpiry time.Time
}

// NewTestSession creates a valid user session with a signed token.
// Pass options to override specific fields.
func NewTestSession(opts ...func(*SessionOptions)) *domain.Session {
	o := &SessionOptions{
		UserID:      nextID("user"),
		TokenExpiry: time.Now().Add(time.Hour),
	}
	o.Username = fmt.Sprintf("traveller%d", idCounter.Load())

	for _, opt := range opts {
		opt(o)
	}

	return &domain.Session{
		UserID:      o.UserID,
		Username:    o.Username,
		IsAdmin:     o.IsAdmin,
		Token:       IssueToken(o.UserID, o.TokenExpiry),
		TokenExpiry: o.TokenExpiry.Truncate(time.Second),
		AdminAPIKey: o.AdminAPIKey,
	}
}

// Session option functions

// WithSessionUserID sets the user ID
func WithSessionUserID(id string) func(*SessionOptions) {
	return func(o *SessionOptions) {
		o.UserID = id
	}
}

// WithAdmin marks the session as admin with the given key
func WithAdmin(apiKey string) func(*SessionOptions) {
	return func(o *SessionOptions) {
		o.IsAdmin = true
		o.AdminAPIKey = apiKey
	}
}

// WithExpiry sets the token expiry
func WithExpiry(expiry time.Time) func(*SessionOptions) {
	return func(o *SessionOptions) {
		o.TokenExpiry = expiry
	}
}

// NewSeatMatrix lays out seats in rows of six, statuses taken in order.
// Seat numbers start at 1.
func NewSeatMatrix(trainID string, statuses ...domain.SeatStatus) *domain.SeatMatrix {
	m := &domain.SeatMatrix{
		TrainID:    trainID,
		TotalSeats: len(statuses),
	}

	var row []domain.Seat
	for i, status := range statuses {
		row = append(row, domain.Seat{SeatNumber: i + 1, Status: status})
		if status == domain.SeatAvailable {
			m.AvailableSeats++
		}
		if len(row) == 6 {
			m.Rows = append(m.Rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		m.Rows = append(m.Rows, row)
	}
	return m
}

// Statuses repeats one status n times
func Statuses(status domain.SeatStatus, n int) []domain.SeatStatus {
	out := make([]domain.SeatStatus, n)
	for i := range out {
		out[i] = status
	}
	return out
}
