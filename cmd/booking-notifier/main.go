package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"train-console/internal/config"
	"train-console/internal/domain"
	"train-console/internal/messaging"
	"train-console/internal/observability"
)

func main() {
	cfg := config.Load()

	observability.InitLogger(cfg.LogLevel, cfg.LogFormat)

	slog.Info("starting booking notifier")

	if cfg.RabbitMQURL == "" {
		slog.Error("RABBITMQ_URL is required")
		os.Exit(1)
	}

	rmq, err := messaging.NewRabbitMQ(cfg.RabbitMQURL)
	if err != nil {
		slog.Error("failed to connect to rabbitmq", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer rmq.Close()

	slog.Info("connected to rabbitmq")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	consumer := messaging.NewBookingConsumer(rmq, messaging.NotificationQueue, notify)
	done, err := consumer.Start(ctx)
	if err != nil {
		slog.Error("failed to start consuming", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("booking notifier is ready", slog.String("queue", messaging.NotificationQueue))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		slog.Info("shutting down booking notifier")
	case <-done:
		slog.Warn("booking consumer stopped")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
	}
	slog.Info("booking notifier stopped")
}

// notify tells the traveller about a confirmed booking. Delivery is a
// log line; mail or SMS transports plug in here.
func notify(ctx context.Context, event *domain.BookingConfirmed) error {
	observability.FromContext(ctx).Info("booking confirmed",
		slog.String("event_id", event.EventID),
		slog.String("booking_id", event.BookingID),
		slog.String("train_id", event.TrainID),
		slog.String("user_id", event.UserID),
		slog.String("username", event.Username),
		slog.Any("seat_numbers", event.SeatNumbers),
		slog.Float64("total_price", event.TotalPrice),
		slog.Time("confirmed_at", event.ConfirmedAt))
	return nil
}
