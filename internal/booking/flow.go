// Package booking runs the seat booking dialog: selection against a
// fetched seat matrix, one guarded submission at a time, and recovery
// from seat races reported by the backend.
package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"train-console/internal/apiclient"
	"train-console/internal/domain"
	"train-console/internal/observability"
	"train-console/internal/seatmatrix"
)

// State of a booking dialog
type State string

const (
	StateIdle       State = "IDLE"
	StateSubmitting State = "SUBMITTING"
	StateConfirmed  State = "CONFIRMED"
	StateConflict   State = "CONFLICT"
	StateRejected   State = "REJECTED"
	StateFailed     State = "FAILED"
)

// Backend is the subset of the API client a dialog needs
type Backend interface {
	seatmatrix.Backend
	Post(ctx context.Context, path string, body, out any) (*apiclient.Response, error)
}

type bookRequest struct {
	UserID      string `json:"user_id"`
	SeatNumbers []int  `json:"seat_numbers"`
}

type bookResponse struct {
	Status      string            `json:"status"`
	Message     string            `json:"message"`
	BookingID   domain.FlexString `json:"booking_id"`
	SeatNumbers []int             `json:"seat_numbers"`
	TotalPrice  *domain.FlexFloat `json:"total_price"`
	BookingTime string            `json:"booking_time"`
}

// Snapshot is what a view needs to render a dialog
type Snapshot struct {
	DialogID     string             `json:"dialog_id"`
	TrainID      string             `json:"train_id"`
	State        State              `json:"state"`
	Generation   uint64             `json:"generation"`
	Closed       bool               `json:"closed"`
	Matrix       *domain.SeatMatrix `json:"matrix"`
	Selection    []int              `json:"selection"`
	Estimate     *float64           `json:"estimate,omitempty"`
	Booking      *domain.Booking    `json:"booking,omitempty"`
	Error        *BookingError      `json:"error,omitempty"`
	NeedsRefresh bool               `json:"needs_refresh"`
}

// Flow is one open booking dialog for one train
type Flow struct {
	id      string
	trainID string
	userID  string
	backend Backend
	seats   *seatmatrix.Model
	now     func() time.Time

	onChange    func(Snapshot)
	onConfirmed func(context.Context, *domain.Booking)

	mu           sync.Mutex
	state        State
	generation   uint64
	closed       bool
	needsRefresh bool
	booking      *domain.Booking
	lastErr      *BookingError
}

// Option configures a Flow
type Option func(*Flow)

// WithChangeHook is called with a fresh snapshot after every transition
func WithChangeHook(fn func(Snapshot)) Option {
	return func(f *Flow) {
		f.onChange = fn
	}
}

// WithConfirmedHook is called once per booking the backend confirms
func WithConfirmedHook(fn func(context.Context, *domain.Booking)) Option {
	return func(f *Flow) {
		f.onConfirmed = fn
	}
}

// WithClock replaces the wall clock
func WithClock(now func() time.Time) Option {
	return func(f *Flow) {
		f.now = now
	}
}

// NewFlow creates an IDLE dialog. Call Refresh to load the seat matrix.
func NewFlow(id, trainID, userID string, backend Backend, opts ...Option) *Flow {
	f := &Flow{
		id:      id,
		trainID: trainID,
		userID:  userID,
		backend: backend,
		seats:   seatmatrix.New(backend),
		now:     time.Now,
		state:   StateIdle,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *Flow) ID() string      { return f.id }
func (f *Flow) TrainID() string { return f.trainID }
func (f *Flow) UserID() string  { return f.userID }

// State returns the current dialog state
func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Selection returns the selected seats in ascending order
func (f *Flow) Selection() []int {
	return f.seats.Selection()
}

// Refresh re-fetches the seat matrix. A dialog showing an outcome
// returns to IDLE.
func (f *Flow) Refresh(ctx context.Context) (*domain.SeatMatrix, error) {
	f.mu.Lock()
	if err := f.guardLocked(); err != nil {
		f.mu.Unlock()
		return nil, err
	}
	f.mu.Unlock()

	matrix, err := f.seats.Fetch(ctx, f.trainID)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	f.needsRefresh = false
	if f.state != StateSubmitting {
		f.resetLocked()
	}
	f.mu.Unlock()
	f.changed()

	return matrix, nil
}

// Toggle flips one seat in the selection. It is refused while a
// submission is in flight.
func (f *Flow) Toggle(seatNumber int) (seatmatrix.ToggleResult, error) {
	f.mu.Lock()
	if err := f.guardLocked(); err != nil {
		f.mu.Unlock()
		return seatmatrix.Unknown, err
	}
	result := f.seats.Toggle(seatNumber)
	f.mu.Unlock()

	if result == seatmatrix.Selected || result == seatmatrix.Deselected {
		f.changed()
	}
	return result, nil
}

// Acknowledge dismisses the last outcome and returns to IDLE
func (f *Flow) Acknowledge() error {
	f.mu.Lock()
	if err := f.guardLocked(); err != nil {
		f.mu.Unlock()
		return err
	}
	f.resetLocked()
	f.mu.Unlock()
	f.changed()
	return nil
}

// Close dismisses the dialog. A response still in flight is discarded
// when it arrives.
func (f *Flow) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	f.generation++
	f.mu.Unlock()
	f.changed()
}

// Submit books the current selection. Whatever the outcome, the seat
// matrix is fetched again and the selection cleared before Submit
// returns, so the next submission starts from fresh seat state.
func (f *Flow) Submit(ctx context.Context) (*domain.Booking, error) {
	ctx = observability.WithDialogID(ctx, f.id)
	logger := observability.FromContext(ctx)

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil, fmt.Errorf("submit: %w", domain.ErrDialogClosed)
	}
	if f.state == StateSubmitting {
		f.mu.Unlock()
		return nil, rejected(&BookingError{Kind: KindAlreadyInProgress, Message: msgAlreadyInProgress})
	}
	if f.needsRefresh {
		f.mu.Unlock()
		return nil, rejected(&BookingError{Kind: KindStale, Message: msgSeatsOutdated})
	}
	seats := f.seats.Selection()
	if len(seats) == 0 {
		f.mu.Unlock()
		return nil, rejected(&BookingError{Kind: KindEmptySelection, Message: msgEmptySelection})
	}
	generation := f.generation
	f.state = StateSubmitting
	f.booking = nil
	f.lastErr = nil
	f.mu.Unlock()
	f.changed()

	estimate, hasEstimate := f.seats.EstimateTotal()
	logger.Info("booking submitted",
		slog.String("train_id", f.trainID),
		slog.Any("seat_numbers", seats),
	)

	booking, bookErr := f.book(ctx, seats)

	if f.isStale(generation) {
		return nil, f.discard(logger, booking, bookErr)
	}

	// No merging: the backend's view replaces ours after every attempt
	_, fetchErr := f.seats.Fetch(context.WithoutCancel(ctx), f.trainID)
	if fetchErr != nil {
		f.seats.Clear()
		logger.Warn("seat matrix refresh after booking failed", slog.String("error", fetchErr.Error()))
	}

	f.mu.Lock()
	if f.generation != generation {
		f.mu.Unlock()
		return nil, f.discard(logger, booking, bookErr)
	}
	f.needsRefresh = fetchErr != nil
	if bookErr != nil {
		f.state = stateFor(bookErr)
		f.lastErr = bookErr
	} else {
		f.state = StateConfirmed
		f.booking = booking
	}
	f.mu.Unlock()
	f.changed()

	if bookErr != nil {
		observability.BookingOutcomesTotal.WithLabelValues(strings.ToLower(string(bookErr.Kind))).Inc()
		logger.Warn("booking not confirmed",
			slog.String("kind", string(bookErr.Kind)),
			slog.String("message", bookErr.Message),
			slog.Any("available_seats", bookErr.AvailableSeats),
		)
		return nil, bookErr
	}

	observability.BookingOutcomesTotal.WithLabelValues("confirmed").Inc()
	attrs := []any{
		slog.String("booking_id", booking.BookingID),
		slog.Float64("total_price", booking.TotalPrice),
	}
	if hasEstimate {
		attrs = append(attrs, slog.Float64("estimate", estimate))
	}
	logger.Info("booking confirmed", attrs...)

	if f.onConfirmed != nil {
		f.onConfirmed(ctx, booking)
	}
	return booking, nil
}

// Snapshot captures the dialog for rendering
func (f *Flow) Snapshot() Snapshot {
	f.mu.Lock()
	snap := Snapshot{
		DialogID:     f.id,
		TrainID:      f.trainID,
		State:        f.state,
		Generation:   f.generation,
		Closed:       f.closed,
		Booking:      f.booking,
		Error:        f.lastErr,
		NeedsRefresh: f.needsRefresh,
	}
	f.mu.Unlock()

	snap.Matrix = f.seats.Matrix()
	snap.Selection = f.seats.Selection()
	if estimate, ok := f.seats.EstimateTotal(); ok && len(snap.Selection) > 0 {
		snap.Estimate = &estimate
	}
	return snap
}

func (f *Flow) book(ctx context.Context, seats []int) (*domain.Booking, *BookingError) {
	path := "/trains/" + url.PathEscape(f.trainID) + "/book"

	var out bookResponse
	resp, err := f.backend.Post(ctx, path, bookRequest{UserID: f.userID, SeatNumbers: seats}, &out)
	if err != nil {
		return nil, bookingErrorFrom(err)
	}

	// The backend signals success by status code on some paths and by
	// body status on others
	if resp.Status != http.StatusCreated && !strings.EqualFold(out.Status, "success") {
		message := out.Message
		if message == "" {
			message = msgUnexpectedReply
		}
		return nil, &BookingError{Kind: KindTransport, Message: message}
	}

	booking := &domain.Booking{
		BookingID:   string(out.BookingID),
		TrainID:     f.trainID,
		UserID:      f.userID,
		SeatNumbers: out.SeatNumbers,
		Status:      "CONFIRMED",
		BookingDate: f.now().UTC(),
	}
	if booking.SeatNumbers == nil {
		booking.SeatNumbers = seats
	}
	if out.TotalPrice != nil {
		booking.TotalPrice = float64(*out.TotalPrice)
	}
	if out.BookingTime != "" {
		if t, err := domain.ParseBackendTime(out.BookingTime); err == nil {
			booking.BookingDate = t
		}
	}
	return booking, nil
}

func (f *Flow) isStale(generation uint64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.generation != generation
}

// discard drops a response that belongs to a closed dialog
func (f *Flow) discard(logger *slog.Logger, booking *domain.Booking, bookErr *BookingError) error {
	attrs := []any{slog.String("train_id", f.trainID)}
	if booking != nil {
		attrs = append(attrs, slog.String("booking_id", booking.BookingID))
	}
	if bookErr != nil {
		attrs = append(attrs, slog.String("kind", string(bookErr.Kind)))
	}
	logger.Warn("discarding booking response for closed dialog", attrs...)

	observability.BookingOutcomesTotal.WithLabelValues(strings.ToLower(string(KindStale))).Inc()
	stale := &BookingError{Kind: KindStale, Message: msgStale}
	if bookErr != nil {
		stale.Err = bookErr
	}
	return stale
}

// rejected records a submission refused before it reached the network
func rejected(err *BookingError) error {
	observability.BookingOutcomesTotal.WithLabelValues(strings.ToLower(string(err.Kind))).Inc()
	return err
}

func (f *Flow) guardLocked() error {
	if f.closed {
		return domain.ErrDialogClosed
	}
	if f.state == StateSubmitting {
		return &BookingError{Kind: KindAlreadyInProgress, Message: msgAlreadyInProgress}
	}
	return nil
}

func (f *Flow) resetLocked() {
	f.state = StateIdle
	f.booking = nil
	f.lastErr = nil
}

func (f *Flow) changed() {
	if f.onChange != nil {
		f.onChange(f.Snapshot())
	}
}

func stateFor(err *BookingError) State {
	switch err.Kind {
	case KindSeatsTaken, KindConcurrentBooking:
		return StateConflict
	case KindInvalidSeats, KindRejected:
		return StateRejected
	default:
		return StateFailed
	}
}

// bookingErrorFrom maps a client failure onto a booking outcome.
// error_type decides first since conflicts arrive as 409 or 400.
func bookingErrorFrom(err error) *BookingError {
	var apiErr *apiclient.APIError
	if !errors.As(err, &apiErr) {
		return &BookingError{Kind: KindTransport, Message: err.Error(), Err: err}
	}

	bookingErr := &BookingError{
		Message:        apiErr.Message,
		AvailableSeats: apiErr.AvailableSeats,
		Err:            err,
	}

	switch apiErr.ErrorType {
	case errorTypeSeatsTaken:
		bookingErr.Kind = KindSeatsTaken
	case errorTypeConcurrentBooking:
		bookingErr.Kind = KindConcurrentBooking
	case errorTypeInvalidSeats:
		bookingErr.Kind = KindInvalidSeats
	default:
		switch apiErr.Kind {
		case apiclient.KindConflict:
			bookingErr.Kind = KindSeatsTaken
		case apiclient.KindValidation, apiclient.KindAuthExpired:
			bookingErr.Kind = KindRejected
		default:
			bookingErr.Kind = KindTransport
		}
	}
	return bookingErr
}
