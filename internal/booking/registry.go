package booking

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"train-console/internal/domain"
	"train-console/internal/observability"
)

// Dialog event types
const (
	EventUpdated = "dialog.updated"
	EventClosed  = "dialog.closed"
)

const publishTimeout = 5 * time.Second

// Event is a dialog change delivered to subscribers
type Event struct {
	Type     string   `json:"type"`
	Snapshot Snapshot `json:"snapshot"`
}

// EventSink receives dialog events, typically a websocket hub.
// Publish must not block.
type EventSink interface {
	Publish(dialogID string, event Event)
}

// Registry tracks the open booking dialogs of the console
type Registry struct {
	backend   Backend
	sink      EventSink
	publisher domain.BookingPublisher
	now       func() time.Time

	mu      sync.RWMutex
	dialogs map[string]*Flow
}

// RegistryOption configures a Registry
type RegistryOption func(*Registry)

// WithEventSink streams dialog snapshots to sink
func WithEventSink(sink EventSink) RegistryOption {
	return func(r *Registry) {
		r.sink = sink
	}
}

// WithPublisher announces confirmed bookings through publisher
func WithPublisher(publisher domain.BookingPublisher) RegistryOption {
	return func(r *Registry) {
		r.publisher = publisher
	}
}

// WithRegistryClock replaces the wall clock of the registry and its dialogs
func WithRegistryClock(now func() time.Time) RegistryOption {
	return func(r *Registry) {
		r.now = now
	}
}

// NewRegistry creates an empty registry
func NewRegistry(backend Backend, opts ...RegistryOption) *Registry {
	r := &Registry{
		backend: backend,
		now:     time.Now,
		dialogs: make(map[string]*Flow),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Open starts a dialog for trainID on behalf of session and loads its
// seat matrix. Nothing is registered when the first fetch fails.
func (r *Registry) Open(ctx context.Context, trainID string, session *domain.Session) (*Flow, error) {
	if session == nil {
		return nil, domain.ErrNotAuthenticated
	}
	if trainID == "" {
		return nil, fmt.Errorf("train id is required: %w", domain.ErrInvalidInput)
	}

	id := uuid.NewString()
	owner := *session
	flow := NewFlow(id, trainID, session.UserID, r.backend,
		WithClock(r.now),
		WithChangeHook(func(snap Snapshot) {
			eventType := EventUpdated
			if snap.Closed {
				eventType = EventClosed
			}
			r.emit(id, eventType, snap)
		}),
		WithConfirmedHook(func(ctx context.Context, booking *domain.Booking) {
			r.announce(ctx, &owner, booking)
		}),
	)

	if _, err := flow.seats.Fetch(ctx, trainID); err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.dialogs[id] = flow
	r.mu.Unlock()
	observability.BookingDialogsOpen.Inc()

	observability.FromContext(observability.WithDialogID(ctx, id)).Info("booking dialog opened",
		slog.String("train_id", trainID),
		slog.String("user_id", session.UserID),
	)
	return flow, nil
}

// Get returns an open dialog
func (r *Registry) Get(id string) (*Flow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	flow, ok := r.dialogs[id]
	if !ok {
		return nil, domain.ErrDialogNotFound
	}
	return flow, nil
}

// Close dismisses a dialog and forgets it
func (r *Registry) Close(id string) error {
	r.mu.Lock()
	flow, ok := r.dialogs[id]
	delete(r.dialogs, id)
	r.mu.Unlock()

	if !ok {
		return domain.ErrDialogNotFound
	}
	r.close(flow)
	return nil
}

// CloseAll dismisses every dialog, used when the session ends
func (r *Registry) CloseAll() int {
	r.mu.Lock()
	flows := make([]*Flow, 0, len(r.dialogs))
	for id, flow := range r.dialogs {
		flows = append(flows, flow)
		delete(r.dialogs, id)
	}
	r.mu.Unlock()

	for _, flow := range flows {
		r.close(flow)
	}
	return len(flows)
}

// Len returns the number of open dialogs
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.dialogs)
}

func (r *Registry) close(flow *Flow) {
	flow.Close()
	observability.BookingDialogsOpen.Dec()
}

func (r *Registry) emit(dialogID, eventType string, snap Snapshot) {
	if r.sink == nil {
		return
	}
	r.sink.Publish(dialogID, Event{Type: eventType, Snapshot: snap})
}

// announce publishes a confirmed booking. Failures are logged only, the
// booking already exists on the backend.
func (r *Registry) announce(ctx context.Context, owner *domain.Session, booking *domain.Booking) {
	if r.publisher == nil {
		return
	}

	event := &domain.BookingConfirmed{
		EventID:     uuid.NewString(),
		BookingID:   booking.BookingID,
		TrainID:     booking.TrainID,
		UserID:      owner.UserID,
		Username:    owner.Username,
		SeatNumbers: booking.SeatNumbers,
		TotalPrice:  booking.TotalPrice,
		ConfirmedAt: r.now().UTC(),
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := r.publisher.PublishBookingConfirmed(ctx, event); err != nil {
		observability.FromContext(ctx).Error("failed to publish booking event",
			slog.String("booking_id", booking.BookingID),
			slog.String("error", err.Error()),
		)
	}
}
