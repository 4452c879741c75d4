package handler

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"train-console/internal/apiclient"
	"train-console/internal/booking"
	"train-console/internal/domain"
	"train-console/internal/session"
)

func TestErrorResponse(t *testing.T) {
	notFound := &apiclient.APIError{Kind: apiclient.KindValidation, Status: http.StatusNotFound, Message: "Train not found"}

	tests := []struct {
		name     string
		err      error
		status   int
		wantKind string
		wantCode string
	}{
		{"seats taken", &booking.BookingError{Kind: booking.KindSeatsTaken, Message: "m"}, http.StatusConflict, "SEATS_TAKEN", ""},
		{"stale", &booking.BookingError{Kind: booking.KindStale, Message: "m"}, http.StatusConflict, "STALE", ""},
		{"invalid seats", &booking.BookingError{Kind: booking.KindInvalidSeats, Message: "m"}, http.StatusUnprocessableEntity, "INVALID_SEATS", ""},
		{"booking transport", &booking.BookingError{Kind: booking.KindTransport, Message: "m"}, http.StatusBadGateway, "TRANSPORT", ""},
		{"bad credentials", &session.AuthError{Code: session.CodeInvalidCredentials, Message: "m"}, http.StatusUnauthorized, "", "INVALID_CREDENTIALS"},
		{"not admin", &session.AuthError{Code: session.CodeNotAdmin, Message: "m"}, http.StatusForbidden, "", "NOT_ADMIN"},
		{"auth transport", &session.AuthError{Code: session.CodeTransport, Message: "m"}, http.StatusBadGateway, "", "TRANSPORT"},
		{"wrapped not found", fmt.Errorf("get train: %w: %w", domain.ErrTrainNotFound, notFound), http.StatusNotFound, "", ""},
		{"dialog closed", fmt.Errorf("submit: %w", domain.ErrDialogClosed), http.StatusGone, "", ""},
		{"invalid input", fmt.Errorf("x: %w", domain.ErrInvalidInput), http.StatusBadRequest, "VALIDATION", ""},
		{"admin key", domain.ErrAdminKeyRequired, http.StatusForbidden, "VALIDATION", ""},
		{"auth expired", &apiclient.APIError{Kind: apiclient.KindAuthExpired, Status: 401, Message: "m"}, http.StatusUnauthorized, "AUTH_EXPIRED", ""},
		{"conflict", &apiclient.APIError{Kind: apiclient.KindConflict, Status: 409, Message: "m"}, http.StatusConflict, "CONFLICT", ""},
		{"validation keeps status", &apiclient.APIError{Kind: apiclient.KindValidation, Status: 422, Message: "m"}, http.StatusUnprocessableEntity, "VALIDATION", ""},
		{"network", &apiclient.APIError{Kind: apiclient.KindNetwork, Message: "m"}, http.StatusBadGateway, "NETWORK", ""},
		{"server", &apiclient.APIError{Kind: apiclient.KindServer, Status: 503, Message: "m"}, http.StatusBadGateway, "SERVER", ""},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := errorResponse(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.wantKind, body.Kind)
			assert.Equal(t, tt.wantCode, body.Code)
			assert.NotEmpty(t, body.Error)
		})
	}
}
