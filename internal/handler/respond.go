package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"train-console/internal/apiclient"
	"train-console/internal/booking"
	"train-console/internal/domain"
	"train-console/internal/observability"
	"train-console/internal/session"
)

const maxBodyBytes = 1 << 20

// ErrorResponse is the body of every failed console request
type ErrorResponse struct {
	Error          string         `json:"error"`
	Kind           string         `json:"kind,omitempty"`
	Code           string         `json:"code,omitempty"`
	AvailableSeats []int          `json:"available_seats,omitempty"`
	Details        map[string]any `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

func decodeJSON(r *http.Request, v any) error {
	return json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v)
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: message, Kind: string(apiclient.KindValidation)})
}

// writeError maps a domain, session, booking or backend failure to a status
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := errorResponse(err)

	logger := observability.FromContext(r.Context())
	if status >= http.StatusInternalServerError {
		logger.Error("request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", status),
			slog.String("error", err.Error()))
	} else {
		logger.Debug("request rejected",
			slog.String("path", r.URL.Path),
			slog.Int("status", status),
			slog.String("error", err.Error()))
	}

	writeJSON(w, status, body)
}

func errorResponse(err error) (int, ErrorResponse) {
	var bookErr *booking.BookingError
	var authErr *session.AuthError
	var apiErr *apiclient.APIError

	switch {
	case errors.As(err, &bookErr):
		return bookingStatus(bookErr.Kind), ErrorResponse{
			Error:          bookErr.Message,
			Kind:           string(bookErr.Kind),
			AvailableSeats: bookErr.AvailableSeats,
		}
	case errors.As(err, &authErr):
		return authStatus(authErr.Code), ErrorResponse{
			Error: authErr.Message,
			Code:  string(authErr.Code),
		}

	// Sentinels first: not-found errors also wrap the backend's APIError
	case errors.Is(err, domain.ErrDialogNotFound):
		return http.StatusNotFound, ErrorResponse{Error: "Booking dialog not found"}
	case errors.Is(err, domain.ErrTrainNotFound):
		return http.StatusNotFound, ErrorResponse{Error: "Train not found"}
	case errors.Is(err, domain.ErrBookingNotFound):
		return http.StatusNotFound, ErrorResponse{Error: "Booking not found"}
	case errors.Is(err, domain.ErrDialogClosed):
		return http.StatusGone, ErrorResponse{Error: "Booking dialog closed"}
	case errors.Is(err, domain.ErrNotAuthenticated):
		return http.StatusUnauthorized, ErrorResponse{Error: "Not authenticated"}
	case errors.Is(err, domain.ErrAdminKeyRequired):
		return http.StatusForbidden, ErrorResponse{Error: "Admin API key not found. Please login as admin.", Kind: string(apiclient.KindValidation)}
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest, ErrorResponse{Error: err.Error(), Kind: string(apiclient.KindValidation)}

	case errors.As(err, &apiErr):
		return apiStatus(apiErr), ErrorResponse{
			Error:          apiErr.Message,
			Kind:           string(apiErr.Kind),
			AvailableSeats: apiErr.AvailableSeats,
			Details:        apiErr.Details,
		}
	}

	return http.StatusInternalServerError, ErrorResponse{Error: "Internal server error"}
}

func bookingStatus(kind booking.ErrorKind) int {
	switch kind {
	case booking.KindSeatsTaken, booking.KindConcurrentBooking, booking.KindAlreadyInProgress, booking.KindStale:
		return http.StatusConflict
	case booking.KindInvalidSeats, booking.KindRejected, booking.KindEmptySelection:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadGateway
	}
}

func authStatus(code session.ErrorCode) int {
	switch code {
	case session.CodeInvalidCredentials, session.CodeInvalidToken:
		return http.StatusUnauthorized
	case session.CodeNotAdmin:
		return http.StatusForbidden
	case session.CodeTransport:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func apiStatus(err *apiclient.APIError) int {
	switch err.Kind {
	case apiclient.KindAuthExpired:
		return http.StatusUnauthorized
	case apiclient.KindConflict:
		return http.StatusConflict
	case apiclient.KindValidation:
		if err.Status >= 400 && err.Status < 500 {
			return err.Status
		}
		return http.StatusBadRequest
	default:
		return http.StatusBadGateway
	}
}
