package session

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"time"

	"train-console/internal/apiclient"
	"train-console/internal/domain"
	"train-console/internal/observability"
)

// State of the authentication lifecycle
type State string

const (
	StateAnonymous      State = "ANONYMOUS"
	StateAuthenticating State = "AUTHENTICATING"
	StateUser           State = "AUTHENTICATED_USER"
	StateAdmin          State = "AUTHENTICATED_ADMIN"
)

// Teardown reasons
const (
	ReasonLogout         = "logout"
	ReasonExpired        = "expired"
	ReasonRelogin        = "relogin"
	ReasonRestoreInvalid = "restore_invalid"
)

var (
	usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_.@+\-]+$`)
	emailRegex    = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
)

// Backend is the subset of the API client the store needs
type Backend interface {
	Post(ctx context.Context, path string, body, out any) (*apiclient.Response, error)
}

// Credentials are the login form values
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginOptions select the login mode
type LoginOptions struct {
	AsAdmin bool
}

// SignupRequest registers a new backend account
type SignupRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Status      string            `json:"status"`
	StatusCode  int               `json:"status_code"`
	UserID      domain.FlexString `json:"user_id"`
	AccessToken string            `json:"access_token"`
	IsAdmin     bool              `json:"is_admin"`
	AdminAPIKey string            `json:"admin_api_key"`
	ExpiresAt   *time.Time        `json:"expires_at"`
}

type signupResponse struct {
	Status string            `json:"status"`
	UserID domain.FlexString `json:"user_id"`
}

// Store owns the current session and its persistence. It is the
// credential source and the session terminator of the API client.
type Store struct {
	backend Backend
	storage domain.CredentialStorage
	now     func() time.Time

	loginMu sync.Mutex

	mu         sync.RWMutex
	state      State
	current    *domain.Session
	onTeardown []func(reason string)
}

// Option configures a Store
type Option func(*Store)

// WithClock replaces the wall clock used for expiry checks
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore creates a store in the ANONYMOUS state
func NewStore(backend Backend, storage domain.CredentialStorage, opts ...Option) *Store {
	s := &Store{
		backend: backend,
		storage: storage,
		now:     time.Now,
		state:   StateAnonymous,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OnTeardown registers a hook called whenever an existing session ends
func (s *Store) OnTeardown(fn func(reason string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onTeardown = append(s.onTeardown, fn)
}

// Login exchanges credentials for a session. A held session is torn down
// first. On any failure storage is left empty and the store is ANONYMOUS.
func (s *Store) Login(ctx context.Context, creds Credentials, opts LoginOptions) (*domain.Session, error) {
	s.loginMu.Lock()
	defer s.loginMu.Unlock()

	if err := s.teardown(ctx, ReasonRelogin); err != nil {
		return nil, authError(CodeStorage, "could not clear previous session", err)
	}
	s.setState(StateAuthenticating)

	session, authErr := s.login(ctx, creds, opts)
	if authErr != nil {
		s.reset(ctx)
		observability.FromContext(ctx).Warn("login failed",
			"username", creds.Username,
			"code", string(authErr.Code),
			"admin", opts.AsAdmin,
		)
		return nil, authErr
	}

	if err := s.storage.Save(ctx, session); err != nil {
		s.reset(ctx)
		return nil, authError(CodeStorage, "could not persist session", err)
	}

	s.mu.Lock()
	s.current = session
	s.state = stateFor(session)
	s.mu.Unlock()

	observability.FromContext(ctx).Info("login succeeded",
		"user_id", session.UserID,
		"admin", session.IsAdmin,
		"expires_at", session.TokenExpiry,
	)

	copied := *session
	return &copied, nil
}

func (s *Store) login(ctx context.Context, creds Credentials, opts LoginOptions) (*domain.Session, *AuthError) {
	if creds.Username == "" || creds.Password == "" {
		return nil, authError(CodeInvalidCredentials, "username and password are required", domain.ErrInvalidInput)
	}

	var resp loginResponse
	if _, err := s.backend.Post(ctx, "/login", creds, &resp); err != nil {
		var apiErr *apiclient.APIError
		if errors.As(err, &apiErr) && apiErr.Kind == apiclient.KindValidation {
			return nil, authError(CodeInvalidCredentials, apiErr.Message, err)
		}
		return nil, authError(CodeTransport, "login request failed", err)
	}

	if resp.StatusCode != 0 && resp.StatusCode != 200 {
		return nil, authError(CodeInvalidCredentials, "Login failed. Please check your credentials.", nil)
	}
	if resp.AccessToken == "" {
		return nil, authError(CodeInvalidToken, "no access token received", nil)
	}

	var expiry time.Time
	if resp.ExpiresAt != nil {
		expiry = *resp.ExpiresAt
	} else {
		exp, err := TokenExpiry(resp.AccessToken)
		if err != nil {
			return nil, authError(CodeInvalidToken, "Invalid or expired token received", err)
		}
		expiry = exp
	}
	if !expiry.After(s.now()) {
		return nil, authError(CodeInvalidToken, "Invalid or expired token received", domain.ErrSessionExpired)
	}

	if opts.AsAdmin && !resp.IsAdmin {
		return nil, authError(CodeNotAdmin, "This account does not have admin privileges", nil)
	}
	if resp.IsAdmin && resp.AdminAPIKey == "" {
		return nil, authError(CodeInvalidToken, "admin login without admin api key", domain.ErrMissingAdminKey)
	}

	session := &domain.Session{
		UserID:      string(resp.UserID),
		Username:    creds.Username,
		IsAdmin:     resp.IsAdmin,
		Token:       resp.AccessToken,
		TokenExpiry: expiry,
	}
	if resp.IsAdmin {
		session.AdminAPIKey = resp.AdminAPIKey
	}
	return session, nil
}

// Signup registers an account and returns the backend user id
func (s *Store) Signup(ctx context.Context, req SignupRequest) (string, error) {
	if len(req.Username) < 3 || !usernameRegex.MatchString(req.Username) {
		return "", domain.ErrInvalidInput
	}
	if !emailRegex.MatchString(req.Email) {
		return "", domain.ErrInvalidInput
	}
	if len(req.Password) < 6 {
		return "", domain.ErrInvalidInput
	}

	var resp signupResponse
	if _, err := s.backend.Post(ctx, "/signup", req, &resp); err != nil {
		return "", err
	}

	observability.FromContext(ctx).Info("account created",
		"username", req.Username,
		"user_id", string(resp.UserID),
	)
	return string(resp.UserID), nil
}

// Logout clears the session. Calling it without a session is a no-op.
func (s *Store) Logout(ctx context.Context) error {
	return s.teardown(ctx, ReasonLogout)
}

// Terminate tears the session down on behalf of the API client
func (s *Store) Terminate(ctx context.Context, reason string) {
	if err := s.teardown(ctx, reason); err != nil {
		observability.FromContext(ctx).Error("session teardown failed",
			"reason", reason,
			"error", err,
		)
	}
}

// Restore loads a persisted session. Expired records and admin records
// without an admin key are discarded and the store stays ANONYMOUS.
func (s *Store) Restore(ctx context.Context) (*domain.Session, error) {
	stored, err := s.storage.Load(ctx)
	if errors.Is(err, domain.ErrSessionNotFound) {
		s.setState(StateAnonymous)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if err := stored.Validate(s.now()); err != nil {
		observability.FromContext(ctx).Info("discarding stored session",
			"user_id", stored.UserID,
			"reason", err.Error(),
		)
		observability.SessionTeardownsTotal.WithLabelValues(ReasonRestoreInvalid).Inc()
		if clearErr := s.storage.Clear(ctx); clearErr != nil {
			return nil, clearErr
		}
		s.setState(StateAnonymous)
		return nil, nil
	}

	s.mu.Lock()
	s.current = stored
	s.state = stateFor(stored)
	s.mu.Unlock()

	copied := *stored
	return &copied, nil
}

// Live returns a copy of the held session if it is still valid. A held
// session that has expired is torn down and nil is returned.
func (s *Store) Live(ctx context.Context) *domain.Session {
	s.mu.RLock()
	current := s.current
	s.mu.RUnlock()
	if current == nil {
		return nil
	}

	if err := current.Validate(s.now()); err != nil {
		s.expire(ctx, current)
		return nil
	}
	copied := *current
	return &copied
}

// expire ends the session only if it is still the one found expired
func (s *Store) expire(ctx context.Context, expired *domain.Session) {
	if err := s.end(ctx, ReasonExpired, expired); err != nil {
		observability.FromContext(ctx).Error("session teardown failed",
			"reason", ReasonExpired,
			"error", err,
		)
	}
}

// IsValid reports whether the held session is unexpired at the store clock
func (s *Store) IsValid() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Validate(s.now()) == nil
}

// State returns the lifecycle state
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Current returns a copy of the held session, or nil
func (s *Store) Current() *domain.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return nil
	}
	copied := *s.current
	return &copied
}

func (s *Store) BearerToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return ""
	}
	return s.current.Token
}

func (s *Store) AdminAPIKey() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil || !s.current.IsAdmin {
		return ""
	}
	return s.current.AdminAPIKey
}

func (s *Store) teardown(ctx context.Context, reason string) error {
	return s.end(ctx, reason, nil)
}

// end clears the session. With a non-nil only it is a no-op unless only is
// still the held session.
func (s *Store) end(ctx context.Context, reason string, only *domain.Session) error {
	s.mu.Lock()
	if only != nil && s.current != only {
		s.mu.Unlock()
		return nil
	}
	hadSession := s.current != nil
	s.current = nil
	s.state = StateAnonymous
	hooks := append([]func(string){}, s.onTeardown...)
	s.mu.Unlock()

	if err := s.storage.Clear(ctx); err != nil {
		return err
	}

	if !hadSession {
		return nil
	}

	observability.SessionTeardownsTotal.WithLabelValues(reason).Inc()
	observability.FromContext(ctx).Info("session ended", "reason", reason)
	for _, fn := range hooks {
		fn(reason)
	}
	return nil
}

// reset returns to ANONYMOUS after a failed login
func (s *Store) reset(ctx context.Context) {
	s.mu.Lock()
	s.current = nil
	s.state = StateAnonymous
	s.mu.Unlock()

	if err := s.storage.Clear(ctx); err != nil {
		observability.FromContext(ctx).Error("failed to clear credential storage", "error", err)
	}
}

func (s *Store) setState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

func stateFor(session *domain.Session) State {
	if session.IsAdmin {
		return StateAdmin
	}
	return StateUser
}
