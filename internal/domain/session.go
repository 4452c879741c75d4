package domain

import (
	"context"
	"errors"
	"time"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session expired")
	ErrMissingAdminKey = errors.New("admin session without admin api key")
)

// Session is the authenticated identity of the console user
type Session struct {
	UserID      string    `json:"user_id"`
	Username    string    `json:"username"`
	IsAdmin     bool      `json:"is_admin"`
	Token       string    `json:"token"`
	TokenExpiry time.Time `json:"token_expiry"`
	AdminAPIKey string    `json:"admin_api_key,omitempty"`
}

// Validate checks the stored session against the given instant.
// Admin sessions must carry an admin api key.
func (s *Session) Validate(now time.Time) error {
	if s == nil || s.Token == "" {
		return ErrSessionNotFound
	}
	if !s.TokenExpiry.After(now) {
		return ErrSessionExpired
	}
	if s.IsAdmin && s.AdminAPIKey == "" {
		return ErrMissingAdminKey
	}
	return nil
}

// CredentialStorage persists the session record. Save and Clear must be
// atomic: token, user and admin key are written or removed together.
type CredentialStorage interface {
	Load(ctx context.Context) (*Session, error)
	Save(ctx context.Context, session *Session) error
	Clear(ctx context.Context) error
}
