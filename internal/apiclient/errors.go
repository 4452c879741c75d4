package apiclient

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
)

// Kind classifies a failed backend call
type Kind string

const (
	KindNetwork     Kind = "NETWORK"
	KindAuthExpired Kind = "AUTH_EXPIRED"
	KindValidation  Kind = "VALIDATION"
	KindConflict    Kind = "CONFLICT"
	KindServer      Kind = "SERVER"
)

const (
	msgNetwork          = "Unable to connect to the server. Please check if the backend server is running."
	msgTimeout          = "The server took too long to respond. Please try again."
	msgSessionExpired   = "Session expired. Please login again."
	msgInvalidLogin     = "Incorrect username/password provided. Please check your credentials or register if you don't have an account."
	msgGeneric          = "Something went wrong. Please try again."
	msgInvalidResponse  = "Invalid response from the server."
	msgAdminKeyNotFound = "Admin API key not found. Please login as admin."
)

// APIError is the single normalized failure shape of the client
type APIError struct {
	Kind    Kind
	Status  int
	Message string
	Raw     json.RawMessage

	// Populated from structured 4xx bodies
	ErrorType      string
	AvailableSeats []int
	Details        map[string]any

	Err error
}

func (e *APIError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s (%d): %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// Retryable reports whether a user-initiated retry may succeed
func (e *APIError) Retryable() bool {
	return e.Kind == KindNetwork || e.Kind == KindServer
}

// errorBody is the union of error shapes the backend returns
type errorBody struct {
	Detail         any    `json:"detail"`
	Message        any    `json:"message"`
	Error          any    `json:"error"`
	Status         any    `json:"status"`
	ErrorType      string          `json:"error_type"`
	AvailableSeats json.RawMessage `json:"available_seats"`
}

// classify maps an HTTP status to an error kind. entry marks credential
// exchange routes where 401 is a validation failure.
func classify(status int, entry bool) Kind {
	switch {
	case status == http.StatusUnauthorized && !entry:
		return KindAuthExpired
	case status == http.StatusConflict:
		return KindConflict
	case status >= 500:
		return KindServer
	default:
		return KindValidation
	}
}

// newHTTPError builds an APIError from a non-2xx response
func newHTTPError(status int, body []byte, entry bool) *APIError {
	apiErr := &APIError{
		Kind:   classify(status, entry),
		Status: status,
	}
	if len(body) > 0 && json.Valid(body) {
		apiErr.Raw = json.RawMessage(body)
	}

	var parsed errorBody
	if apiErr.Raw != nil && json.Unmarshal(body, &parsed) == nil {
		apiErr.ErrorType = parsed.ErrorType
		apiErr.AvailableSeats = seatNumbers(parsed.AvailableSeats)
		apiErr.Message = firstMessage(parsed.Detail, parsed.Message, parsed.Error, parsed.Status)

		var details map[string]any
		if json.Unmarshal(body, &details) == nil {
			apiErr.Details = details
		}
	}

	switch {
	case apiErr.Kind == KindAuthExpired:
		apiErr.Message = msgSessionExpired
	case status == http.StatusUnauthorized && entry:
		apiErr.Message = msgInvalidLogin
	case apiErr.Message == "":
		apiErr.Message = msgGeneric
	}

	return apiErr
}

// seatNumbers decodes a seat list leniently. Entries that are not whole
// numbers or numeric strings are skipped.
func seatNumbers(raw json.RawMessage) []int {
	if len(raw) == 0 {
		return nil
	}
	var items []any
	if json.Unmarshal(raw, &items) != nil {
		return nil
	}

	seats := make([]int, 0, len(items))
	for _, item := range items {
		switch v := item.(type) {
		case float64:
			if v == math.Trunc(v) {
				seats = append(seats, int(v))
			}
		case string:
			if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
				seats = append(seats, n)
			}
		}
	}
	return seats
}

// firstMessage returns the first non-empty string among candidates.
// Serializer errors arrive as lists of strings.
func firstMessage(candidates ...any) string {
	for _, c := range candidates {
		switch v := c.(type) {
		case string:
			if v != "" {
				return v
			}
		case []any:
			for _, item := range v {
				if s, ok := item.(string); ok && s != "" {
					return s
				}
			}
		}
	}
	return ""
}
