package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"train-console/internal/domain"
)

const (
	// BookingExchange fans confirmed bookings out to every bound queue
	BookingExchange = "bookings.events"

	// NotificationQueue is the durable queue of the booking notifier
	NotificationQueue = "bookings.notifications"

	eventTypeBookingConfirmed = "booking.confirmed"
)

// RabbitMQ publishes and consumes booking events
type RabbitMQ struct {
	conn    *amqp.Connection
	channel *amqp.Channel

	// amqp channels are not safe for concurrent publishing
	publishMu sync.Mutex
}

func NewRabbitMQ(url string) (*RabbitMQ, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	rmq := &RabbitMQ{
		conn:    conn,
		channel: ch,
	}

	if err := rmq.Setup(); err != nil {
		rmq.Close()
		return nil, err
	}

	return rmq, nil
}

func (r *RabbitMQ) Setup() error {
	if err := r.channel.ExchangeDeclare(
		BookingExchange, // name
		"fanout",        // type
		true,            // durable
		false,           // auto-deleted
		false,           // internal
		false,           // no-wait
		nil,             // arguments
	); err != nil {
		return fmt.Errorf("failed to declare bookings exchange: %w", err)
	}

	slog.Info("rabbitmq setup completed successfully",
		slog.String("exchange", BookingExchange))
	return nil
}

// PublishBookingConfirmed announces a booking the backend accepted
func (r *RabbitMQ) PublishBookingConfirmed(ctx context.Context, event *domain.BookingConfirmed) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal booking event: %w", err)
	}

	r.publishMu.Lock()
	err = r.channel.PublishWithContext(
		ctx,
		BookingExchange,
		"",
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Type:         eventTypeBookingConfirmed,
			MessageId:    event.EventID,
			Timestamp:    event.ConfirmedAt,
			Body:         body,
			DeliveryMode: amqp.Persistent,
		},
	)
	r.publishMu.Unlock()

	if err != nil {
		return fmt.Errorf("failed to publish booking event: %w", err)
	}

	slog.Info("published booking event",
		slog.String("booking_id", event.BookingID),
		slog.String("train_id", event.TrainID))
	return nil
}

// ConsumeBookingEvents binds queue to the bookings exchange and starts
// delivering from it. An empty queue name declares a private queue that
// goes away with the connection.
func (r *RabbitMQ) ConsumeBookingEvents(queue string) (<-chan amqp.Delivery, error) {
	durable := queue != ""
	declared, err := r.channel.QueueDeclare(
		queue,    // name
		durable,  // durable
		!durable, // delete when unused
		!durable, // exclusive
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		return nil, fmt.Errorf("failed to declare %s queue: %w", queue, err)
	}

	if err := r.channel.QueueBind(
		declared.Name,   // queue name
		"",              // routing key
		BookingExchange, // exchange
		false,
		nil,
	); err != nil {
		return nil, fmt.Errorf("failed to bind %s queue: %w", declared.Name, err)
	}

	msgs, err := r.channel.Consume(
		declared.Name, // queue
		"",            // consumer
		false,         // auto-ack
		false,         // exclusive
		false,         // no-local
		false,         // no-wait
		nil,           // args
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register consumer: %w", err)
	}

	slog.Info("started consuming booking events",
		slog.String("queue", declared.Name),
		slog.String("exchange", BookingExchange))
	return msgs, nil
}

func (r *RabbitMQ) IsClosed() bool {
	return r.conn == nil || r.conn.IsClosed()
}

func (r *RabbitMQ) Close() error {
	if r.channel != nil {
		r.channel.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}

// NoopPublisher drops booking events. Used when no broker is configured.
type NoopPublisher struct{}

func (NoopPublisher) PublishBookingConfirmed(_ context.Context, event *domain.BookingConfirmed) error {
	slog.Debug("booking event not published, no broker configured",
		slog.String("booking_id", event.BookingID))
	return nil
}

var errInvalidEvent = errors.New("invalid booking event")

// DecodeBookingConfirmed parses and checks one event body
func DecodeBookingConfirmed(body []byte) (*domain.BookingConfirmed, error) {
	var event domain.BookingConfirmed
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, fmt.Errorf("%w: %w", errInvalidEvent, err)
	}
	if event.BookingID == "" || event.TrainID == "" {
		return nil, fmt.Errorf("%w: booking_id and train_id are required", errInvalidEvent)
	}
	if len(event.SeatNumbers) == 0 {
		return nil, fmt.Errorf("%w: no seat numbers", errInvalidEvent)
	}
	return &event, nil
}
