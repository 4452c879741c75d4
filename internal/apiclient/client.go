package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"train-console/internal/domain"
	"train-console/internal/observability"
)

const maxResponseBytes = 4 << 20

// CredentialSource supplies the credentials attached to outgoing requests
type CredentialSource interface {
	BearerToken() string
	AdminAPIKey() string
}

// SessionTerminator tears down the session when the backend rejects it
type SessionTerminator interface {
	Terminate(ctx context.Context, reason string)
}

// Options configures a Client
type Options struct {
	BaseURL    string
	Timeout    time.Duration
	RPS        float64
	Burst      int
	Routes     []Route
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Response is a successful backend reply
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Client is the single gateway to the reservation backend
type Client struct {
	baseURL    string
	httpClient *http.Client
	routes     *RoutingTable
	limiter    *rate.Limiter
	logger     *slog.Logger

	mu            sync.RWMutex
	creds         CredentialSource
	terminator    SessionTerminator
	onAuthExpired []func()
}

// New creates a backend client
func New(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.RPS <= 0 {
		opts.RPS = 10
	}
	if opts.Burst < 1 {
		opts.Burst = 1
	}
	if opts.Routes == nil {
		opts.Routes = DefaultRoutes()
	}

	// The caller's client is copied so its own Timeout is left alone
	httpClient := &http.Client{}
	if opts.HTTPClient != nil {
		copied := *opts.HTTPClient
		httpClient = &copied
	}
	if httpClient.Timeout <= 0 {
		httpClient.Timeout = opts.Timeout
	}

	return &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		httpClient: httpClient,
		routes:     NewRoutingTable(opts.Routes, AuthBearer),
		limiter:    rate.NewLimiter(rate.Limit(opts.RPS), opts.Burst),
		logger:     opts.Logger,
	}
}

// UseSession binds the credential source and the teardown target
func (c *Client) UseSession(creds CredentialSource, terminator SessionTerminator) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.creds = creds
	c.terminator = terminator
}

// OnAuthExpired registers a hook fired after the session is torn down
// because the backend answered 401
func (c *Client) OnAuthExpired(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onAuthExpired = append(c.onAuthExpired, fn)
}

// Get issues a GET and decodes the reply into out
func (c *Client) Get(ctx context.Context, path string, out any) (*Response, error) {
	return c.Do(ctx, http.MethodGet, path, nil, out)
}

// Post issues a POST with a JSON body and decodes the reply into out
func (c *Client) Post(ctx context.Context, path string, body, out any) (*Response, error) {
	return c.Do(ctx, http.MethodPost, path, body, out)
}

// Delete issues a DELETE
func (c *Client) Delete(ctx context.Context, path string, out any) (*Response, error) {
	return c.Do(ctx, http.MethodDelete, path, nil, out)
}

// Do sends one request to the backend. Every failure is returned as an
// *APIError.
func (c *Client) Do(ctx context.Context, method, path string, body, out any) (*Response, error) {
	route := c.routes.Match(path)
	requestID := observability.RequestID(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
	}

	start := time.Now()
	resp, err := c.do(ctx, method, path, route, requestID, body, out)
	c.record(ctx, method, path, route, requestID, start, resp, err)

	return resp, err
}

func (c *Client) do(ctx context.Context, method, path string, route Route, requestID string, body, out any) (*Response, error) {
	var payload io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, &APIError{Kind: KindValidation, Message: "invalid request body", Err: err}
		}
		payload = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/"+strings.TrimLeft(path, "/"), payload)
	if err != nil {
		return nil, &APIError{Kind: KindValidation, Message: "invalid request", Err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if err := c.authorize(req, route.Auth); err != nil {
		return nil, err
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &APIError{Kind: KindNetwork, Message: msgNetwork, Err: err}
	}

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, transportError(err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	if err != nil {
		return nil, transportError(err)
	}

	if httpResp.StatusCode >= 400 {
		apiErr := newHTTPError(httpResp.StatusCode, raw, route.Entry)
		if apiErr.Kind == KindAuthExpired {
			c.expire(ctx)
		}
		return nil, apiErr
	}

	resp := &Response{
		Status: httpResp.StatusCode,
		Header: httpResp.Header,
		Body:   raw,
	}

	if out != nil && len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return resp, &APIError{
				Kind:    KindServer,
				Status:  httpResp.StatusCode,
				Message: msgInvalidResponse,
				Err:     err,
			}
		}
	}

	return resp, nil
}

// authorize attaches the credential the route requires
func (c *Client) authorize(req *http.Request, strategy AuthStrategy) error {
	c.mu.RLock()
	creds := c.creds
	c.mu.RUnlock()

	switch strategy {
	case AuthBearer:
		if creds == nil {
			return nil
		}
		if token := creds.BearerToken(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	case AuthAdminKey:
		var key string
		if creds != nil {
			key = creds.AdminAPIKey()
		}
		if key == "" {
			return &APIError{
				Kind:    KindValidation,
				Message: msgAdminKeyNotFound,
				Err:     domain.ErrAdminKeyRequired,
			}
		}
		req.Header.Set("Authorization", "Api-Key "+key)
	}
	return nil
}

// expire tears the session down then fires the hooks
func (c *Client) expire(ctx context.Context) {
	c.mu.RLock()
	terminator := c.terminator
	hooks := append([]func(){}, c.onAuthExpired...)
	c.mu.RUnlock()

	if terminator != nil {
		terminator.Terminate(ctx, "backend_unauthorized")
	}
	for _, fn := range hooks {
		fn()
	}
}

func transportError(err error) *APIError {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &APIError{Kind: KindNetwork, Message: msgTimeout, Err: err}
	}
	return &APIError{Kind: KindNetwork, Message: msgNetwork, Err: err}
}

// record emits the request log line and metrics
func (c *Client) record(ctx context.Context, method, path string, route Route, requestID string, start time.Time, resp *Response, err error) {
	duration := time.Since(start)

	routeLabel := route.Prefix
	if routeLabel == "" {
		routeLabel = "other"
	}

	outcome := "ok"
	status := 0
	if resp != nil {
		status = resp.Status
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		outcome = strings.ToLower(string(apiErr.Kind))
		if apiErr.Status != 0 {
			status = apiErr.Status
		}
	}

	observability.BackendRequestDuration.WithLabelValues(method, routeLabel, outcome).Observe(duration.Seconds())
	observability.BackendRequestsTotal.WithLabelValues(method, routeLabel, outcome).Inc()

	logger := c.logger
	if logger == nil {
		logger = observability.FromContext(ctx)
	}

	attrs := []any{
		slog.String("request_id", requestID),
		slog.String("outcome", outcome),
		slog.String("method", method),
		slog.String("path", stripQuery(path)),
		slog.String("auth", route.Auth.String()),
		slog.Int("status", status),
		slog.Int64("duration_ms", duration.Milliseconds()),
	}

	if err == nil {
		logger.Info("backend request", attrs...)
		return
	}

	attrs = append(attrs, slog.String("error", err.Error()))
	if apiErr != nil && apiErr.Retryable() {
		logger.Error("backend request failed", attrs...)
	} else {
		logger.Warn("backend request rejected", attrs...)
	}
}

func stripQuery(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		return path[:i]
	}
	return path
}

