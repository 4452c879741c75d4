package messaging

import (
	"context"
	"errors"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"

	"train-console/internal/domain"
)

// BookingHandler reacts to one confirmed booking. Returning an error
// requeues the delivery once.
type BookingHandler func(ctx context.Context, event *domain.BookingConfirmed) error

// BookingConsumer feeds booking events from a queue to a handler
type BookingConsumer struct {
	rmq     *RabbitMQ
	queue   string
	handler BookingHandler
}

func NewBookingConsumer(rmq *RabbitMQ, queue string, handler BookingHandler) *BookingConsumer {
	return &BookingConsumer{
		rmq:     rmq,
		queue:   queue,
		handler: handler,
	}
}

// Start begins consuming in the background until ctx is done or the
// delivery channel closes. The returned channel closes when it stops.
func (c *BookingConsumer) Start(ctx context.Context) (<-chan struct{}, error) {
	msgs, err := c.rmq.ConsumeBookingEvents(c.queue)
	if err != nil {
		return nil, err
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.run(ctx, msgs)
	}()

	return done, nil
}

func (c *BookingConsumer) run(ctx context.Context, msgs <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			slog.Info("stopping booking consumer")
			return
		case msg, ok := <-msgs:
			if !ok {
				slog.Warn("booking consumer channel closed")
				return
			}
			c.handle(ctx, msg)
		}
	}
}

// Acknowledger is the part of a delivery the consumer settles
type Acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

func (c *BookingConsumer) handle(ctx context.Context, msg amqp.Delivery) {
	c.process(ctx, msg.Body, msg.Redelivered, msg)
}

// process decodes body, runs the handler and settles the delivery.
// Malformed events are dropped, handler failures are retried once.
func (c *BookingConsumer) process(ctx context.Context, body []byte, redelivered bool, ack Acknowledger) {
	event, err := DecodeBookingConfirmed(body)
	if err != nil {
		slog.Error("dropping malformed booking event",
			slog.String("error", err.Error()),
			slog.Int("body_size", len(body)))
		_ = ack.Nack(false, false)
		return
	}

	if err := c.handler(ctx, event); err != nil {
		requeue := !redelivered && !errors.Is(err, context.Canceled)
		slog.Error("booking event handler failed",
			slog.String("booking_id", event.BookingID),
			slog.Bool("requeue", requeue),
			slog.String("error", err.Error()))
		_ = ack.Nack(false, requeue)
		return
	}

	if err := ack.Ack(false); err != nil {
		slog.Warn("failed to ack booking event",
			slog.String("booking_id", event.BookingID),
			slog.String("error", err.Error()))
	}
}
