package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"train-console/internal/booking"
	"train-console/internal/domain"
	"train-console/internal/middleware"
	"train-console/internal/observability"
)

// DialogHandler drives booking dialogs
type DialogHandler struct {
	registry *booking.Registry
}

// NewDialogHandler creates a new dialog handler
func NewDialogHandler(registry *booking.Registry) *DialogHandler {
	return &DialogHandler{
		registry: registry,
	}
}

// OpenDialogRequest represents dialog creation request
type OpenDialogRequest struct {
	TrainID string `json:"train_id"`
}

// ToggleResponse is the outcome of a seat toggle
type ToggleResponse struct {
	Result   string           `json:"result"`
	Snapshot booking.Snapshot `json:"snapshot"`
}

// SubmitResponse carries a confirmed booking
type SubmitResponse struct {
	Booking  *domain.Booking  `json:"booking"`
	Snapshot booking.Snapshot `json:"snapshot"`
}

// Open starts a dialog and loads its seat matrix
func (h *DialogHandler) Open(w http.ResponseWriter, r *http.Request) {
	s, ok := middleware.GetSession(r.Context())
	if !ok {
		writeError(w, r, domain.ErrNotAuthenticated)
		return
	}

	var req OpenDialogRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "Invalid request body")
		return
	}

	flow, err := h.registry.Open(r.Context(), req.TrainID, s)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, flow.Snapshot())
}

// Get returns the dialog snapshot
func (h *DialogHandler) Get(w http.ResponseWriter, r *http.Request) {
	flow, ok := h.dialog(w, r)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, flow.Snapshot())
}

// Toggle flips one seat of the selection
func (h *DialogHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	flow, ok := h.dialog(w, r)
	if !ok {
		return
	}

	seat, err := strconv.Atoi(chi.URLParam(r, "seat"))
	if err != nil || seat < 1 {
		writeBadRequest(w, "Seat number must be a positive integer")
		return
	}

	result, err := flow.Toggle(seat)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, ToggleResponse{Result: result.String(), Snapshot: flow.Snapshot()})
}

// Submit books the selection
func (h *DialogHandler) Submit(w http.ResponseWriter, r *http.Request) {
	flow, ok := h.dialog(w, r)
	if !ok {
		return
	}

	confirmed, err := flow.Submit(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, SubmitResponse{Booking: confirmed, Snapshot: flow.Snapshot()})
}

// Acknowledge dismisses the last outcome
func (h *DialogHandler) Acknowledge(w http.ResponseWriter, r *http.Request) {
	flow, ok := h.dialog(w, r)
	if !ok {
		return
	}

	if err := flow.Acknowledge(); err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, flow.Snapshot())
}

// Refresh reloads the seat matrix
func (h *DialogHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	flow, ok := h.dialog(w, r)
	if !ok {
		return
	}

	if _, err := flow.Refresh(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, flow.Snapshot())
}

// Close dismisses the dialog
func (h *DialogHandler) Close(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.dialog(w, r); !ok {
		return
	}

	if err := h.registry.Close(chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// dialog resolves the {id} dialog of the session user. Dialogs of other
// users are reported as missing.
func (h *DialogHandler) dialog(w http.ResponseWriter, r *http.Request) (*booking.Flow, bool) {
	return lookupDialog(w, r, h.registry)
}

func lookupDialog(w http.ResponseWriter, r *http.Request, registry *booking.Registry) (*booking.Flow, bool) {
	id := chi.URLParam(r, "id")

	flow, err := registry.Get(id)
	if err == nil {
		userID, _ := middleware.GetUserID(r.Context())
		if flow.UserID() != userID {
			err = domain.ErrDialogNotFound
		}
	}
	if err != nil {
		writeError(w, r.WithContext(observability.WithDialogID(r.Context(), id)), err)
		return nil, false
	}
	return flow, true
}
