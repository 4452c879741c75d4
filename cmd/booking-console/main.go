package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"train-console/internal/apiclient"
	"train-console/internal/booking"
	"train-console/internal/catalog"
	"train-console/internal/config"
	"train-console/internal/domain"
	"train-console/internal/handler"
	"train-console/internal/messaging"
	"train-console/internal/middleware"
	"train-console/internal/observability"
	"train-console/internal/repository/postgres"
	"train-console/internal/session"
	"train-console/internal/websocket"
)

func main() {
	cfg := config.Load()

	logs := observability.InitAsyncLogger(cfg.LogLevel, cfg.LogFormat, 4096)
	defer logs.Close()

	slog.Info("starting booking console",
		slog.String("backend_url", cfg.BackendURL),
		slog.String("session_store", cfg.SessionStore))

	client := apiclient.New(apiclient.Options{
		BaseURL: cfg.BackendURL,
		Timeout: cfg.RequestTimeout,
		RPS:     cfg.BackendRPS,
		Burst:   cfg.BackendBurst,
		Logger:  slog.Default(),
	})

	storage, db, err := openStorage(cfg)
	if err != nil {
		slog.Error("failed to open session storage", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if db != nil {
		defer db.Close()
	}

	store := session.NewStore(client, storage)
	client.UseSession(store, store)

	restoreCtx, restoreCancel := context.WithTimeout(context.Background(), 10*time.Second)
	restored, err := store.Restore(restoreCtx)
	restoreCancel()
	switch {
	case err != nil:
		slog.Warn("could not restore session", slog.String("error", err.Error()))
	case restored != nil:
		slog.Info("session restored",
			slog.String("user_id", restored.UserID),
			slog.Bool("is_admin", restored.IsAdmin))
	}

	hub := websocket.NewHub()

	hubCtx, hubCancel := context.WithCancel(context.Background())
	defer hubCancel()
	go func() {
		if err := hub.Run(hubCtx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("hub error", slog.String("error", err.Error()))
		}
	}()
	slog.Info("websocket hub started")

	var publisher domain.BookingPublisher = messaging.NoopPublisher{}
	var rmq *messaging.RabbitMQ
	if cfg.RabbitMQURL != "" {
		rmq, err = messaging.NewRabbitMQ(cfg.RabbitMQURL)
		if err != nil {
			slog.Error("failed to connect to rabbitmq", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer rmq.Close()
		publisher = rmq
		slog.Info("connected to rabbitmq")
	}

	registry := booking.NewRegistry(client,
		booking.WithEventSink(hub),
		booking.WithPublisher(publisher),
	)
	store.OnTeardown(func(reason string) {
		closed := registry.CloseAll()
		slog.Info("session ended", slog.String("reason", reason), slog.Int("dialogs_closed", closed))
	})

	validation := middleware.DefaultOpenAPIValidatorConfig(cfg.IsProduction())
	origins := middleware.ParseOrigins(cfg.AllowedOrigins)

	router := handler.NewRouter(handler.RouterConfig{
		Store:          store,
		Catalog:        catalog.New(client),
		Registry:       registry,
		Hub:            hub,
		AllowedOrigins: origins,
		Ready: handler.Ready(handler.ReadyDeps{
			BackendURL: cfg.BackendURL,
			DB:         db,
			RabbitMQ:   rmq,
		}),
		Validation: validation,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("booking console listening", slog.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", slog.String("error", err.Error()))
	}

	// The session survives a restart, only the dialogs are dropped
	registry.CloseAll()
	hubCancel()

	time.Sleep(100 * time.Millisecond)

	slog.Info("server stopped gracefully")
}

// openStorage picks the credential storage named by SESSION_STORE. The
// database is returned for readiness checks and is nil otherwise.
func openStorage(cfg *config.Config) (domain.CredentialStorage, *sql.DB, error) {
	switch cfg.SessionStore {
	case config.SessionStoreMemory:
		return session.NewMemoryStorage(), nil, nil

	case config.SessionStorePostgres:
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		db, err := config.NewPostgresConnection(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		if err := postgres.EnsureSchema(ctx, db); err != nil {
			db.Close()
			return nil, nil, err
		}
		repo, err := postgres.NewCredentialRepository(db, cfg.SessionProfile)
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		slog.Info("connected to postgresql", slog.String("profile", cfg.SessionProfile))
		return repo, db, nil

	default:
		return session.NewFileStorage(cfg.SessionFile), nil, nil
	}
}
