package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"train-console/internal/catalog"
	"train-console/internal/domain"
)

// CatalogHandler serves train search, booking history and admin train management
type CatalogHandler struct {
	catalog *catalog.Service
}

// NewCatalogHandler creates a new catalog handler
func NewCatalogHandler(catalog *catalog.Service) *CatalogHandler {
	return &CatalogHandler{
		catalog: catalog,
	}
}

// SearchTrains lists trains between two stations
func (h *CatalogHandler) SearchTrains(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	trains, err := h.catalog.Search(r.Context(), query.Get("source"), query.Get("destination"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"trains": trains})
}

// GetTrain returns one train
func (h *CatalogHandler) GetTrain(w http.ResponseWriter, r *http.Request) {
	train, err := h.catalog.Train(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, train)
}

// ListBookings returns the booking history of the session user
func (h *CatalogHandler) ListBookings(w http.ResponseWriter, r *http.Request) {
	bookings, err := h.catalog.UserBookings(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"bookings": bookings})
}

// GetBooking returns one booking of a train
func (h *CatalogHandler) GetBooking(w http.ResponseWriter, r *http.Request) {
	detail, err := h.catalog.BookingDetail(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "bookingId"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, detail)
}

// AdminListTrains lists every train
func (h *CatalogHandler) AdminListTrains(w http.ResponseWriter, r *http.Request) {
	trains, err := h.catalog.AllTrains(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"trains": trains})
}

// AdminCreateTrain adds a train
func (h *CatalogHandler) AdminCreateTrain(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateTrainRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "Invalid request body")
		return
	}

	train, err := h.catalog.CreateTrain(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, train)
}

// AdminDeleteTrain removes a train
func (h *CatalogHandler) AdminDeleteTrain(w http.ResponseWriter, r *http.Request) {
	message, err := h.catalog.DeleteTrain(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": message})
}
