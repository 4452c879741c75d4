package handler

import (
	"net/http"
	"time"

	"train-console/internal/domain"
	"train-console/internal/session"
)

// AuthHandler exposes the session store to the view
type AuthHandler struct {
	store *session.Store
}

// NewAuthHandler creates a new authentication handler
func NewAuthHandler(store *session.Store) *AuthHandler {
	return &AuthHandler{
		store: store,
	}
}

// LoginRequest represents login request
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	AsAdmin  bool   `json:"as_admin"`
}

// MeResponse describes the session without its secrets
type MeResponse struct {
	State       session.State `json:"state"`
	UserID      string        `json:"user_id,omitempty"`
	Username    string        `json:"username,omitempty"`
	IsAdmin     bool          `json:"is_admin"`
	TokenExpiry *time.Time    `json:"token_expiry,omitempty"`
}

func meResponse(state session.State, s *domain.Session) MeResponse {
	resp := MeResponse{State: state}
	if s == nil {
		return resp
	}
	expiry := s.TokenExpiry
	resp.UserID = s.UserID
	resp.Username = s.Username
	resp.IsAdmin = s.IsAdmin
	resp.TokenExpiry = &expiry
	return resp
}

// Login handles user and admin login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "Invalid request body")
		return
	}

	s, err := h.store.Login(r.Context(),
		session.Credentials{Username: req.Username, Password: req.Password},
		session.LoginOptions{AsAdmin: req.AsAdmin},
	)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, meResponse(h.store.State(), s))
}

// Signup registers a backend account. It does not log in.
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req session.SignupRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "Invalid request body")
		return
	}

	userID, err := h.store.Signup(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"user_id": userID})
}

// Logout handles user logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Logout(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, meResponse(h.store.State(), nil))
}

// Me reports the session state. An expired session is ended and shows
// as ANONYMOUS.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	live := h.store.Live(r.Context())
	if live == nil {
		writeJSON(w, http.StatusOK, meResponse(session.StateAnonymous, nil))
		return
	}

	writeJSON(w, http.StatusOK, meResponse(h.store.State(), live))
}
