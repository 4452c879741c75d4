package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"train-console/internal/booking"
	"train-console/internal/catalog"
	"train-console/internal/middleware"
	"train-console/internal/session"
	ws "train-console/internal/websocket"
)

// RouterConfig holds what the console routes are served from
type RouterConfig struct {
	Store          *session.Store
	Catalog        *catalog.Service
	Registry       *booking.Registry
	Hub            *ws.Hub
	AllowedOrigins []string
	Ready          http.HandlerFunc
	// Validation is skipped when nil
	Validation *middleware.OpenAPIValidatorConfig
}

// NewRouter builds the console HTTP surface
func NewRouter(cfg RouterConfig) http.Handler {
	authHandler := NewAuthHandler(cfg.Store)
	catalogHandler := NewCatalogHandler(cfg.Catalog)
	dialogHandler := NewDialogHandler(cfg.Registry)
	wsHandler := NewWebSocketHandler(cfg.Hub, cfg.Registry, cfg.AllowedOrigins)

	r := chi.NewRouter()

	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestContext)
	r.Use(middleware.CORS(cfg.AllowedOrigins))
	r.Use(middleware.Metrics())

	r.Get("/health", Health)
	if cfg.Ready != nil {
		r.Get("/health/ready", cfg.Ready)
	}
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		if cfg.Validation != nil {
			r.Use(middleware.OpenAPIValidator(cfg.Validation))
		}

		r.Post("/auth/login", authHandler.Login)
		r.Post("/auth/signup", authHandler.Signup)
		r.Post("/auth/logout", authHandler.Logout)
		r.Get("/auth/me", authHandler.Me)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireSession(cfg.Store))

			r.Get("/trains/search", catalogHandler.SearchTrains)
			r.Get("/trains/{id}", catalogHandler.GetTrain)
			r.Get("/trains/{id}/bookings/{bookingId}", catalogHandler.GetBooking)
			r.Get("/bookings", catalogHandler.ListBookings)

			r.Post("/dialogs", dialogHandler.Open)
			r.Get("/dialogs/{id}", dialogHandler.Get)
			r.Delete("/dialogs/{id}", dialogHandler.Close)
			r.Post("/dialogs/{id}/seats/{seat}/toggle", dialogHandler.Toggle)
			r.Post("/dialogs/{id}/submit", dialogHandler.Submit)
			r.Post("/dialogs/{id}/acknowledge", dialogHandler.Acknowledge)
			r.Post("/dialogs/{id}/refresh", dialogHandler.Refresh)

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireAdmin())

				r.Get("/admin/trains", catalogHandler.AdminListTrains)
				r.Post("/admin/trains", catalogHandler.AdminCreateTrain)
				r.Delete("/admin/trains/{id}", catalogHandler.AdminDeleteTrain)
			})
		})
	})

	r.With(middleware.RequireSession(cfg.Store)).Get("/ws/dialogs/{id}", wsHandler.HandleConnection)

	return r
}
