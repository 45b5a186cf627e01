// Package comap provides an API client for Comap Smart Home thermostats and pilot wire modules.
//
// Using this package typically involves creating a Client and connecting it:
//
//	client := comap.New(comap.Credentials{
//	    Username: "your-comap-username",
//	    Password: "your-comap-password",
//	})
//	if err := client.Connect(ctx); err != nil {
//	    ...
//	}
//
// Connect logs in and selects the first housing of the account. All housing-scoped calls then operate on
// that housing. Use ForHousing to address another housing of the same account.
//
// The client renews its access token when it is about to expire. If a refresh fails, the next call logs in again.
package comap

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultURL is the base URL of the Comap API.
	DefaultURL = "https://api.comapsmarthome.com/"
	// DefaultTimeout bounds each call to the Comap API, including any token renewal.
	DefaultTimeout = 10 * time.Second

	maxErrorBody = 256
)

// TokenSource provides access tokens to the Client.
type TokenSource interface {
	EnsureValid(ctx context.Context) (TokenState, error)
	Invalidate()
}

// Client calls the Comap API on behalf of an authenticated account.
type Client struct {
	HTTPClient *http.Client
	auth       TokenSource
	baseURL    string
	housingID  string
	timeout    time.Duration
	logger     *slog.Logger
}

type options struct {
	httpClient  *http.Client
	transport   http.RoundTripper
	url         string
	authURL     string
	timeout     time.Duration
	housingID   string
	logger      *slog.Logger
	tokenSource TokenSource
}

// Option configures a Client.
type Option func(*options)

// WithHTTPClient sets the http.Client used to call the Comap API and its identity provider.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(o *options) { o.httpClient = httpClient }
}

// WithRoundTripper sets the transport used to call the Comap API and its identity provider.
func WithRoundTripper(rt http.RoundTripper) Option {
	return func(o *options) { o.transport = rt }
}

// WithURL overrides the base URL of the Comap API.
func WithURL(apiURL string) Option {
	return func(o *options) { o.url = apiURL }
}

// WithAuthURL overrides the URL of the identity provider.
func WithAuthURL(authURL string) Option {
	return func(o *options) { o.authURL = authURL }
}

// WithTimeout sets the maximum duration of a single call.
func WithTimeout(timeout time.Duration) Option {
	return func(o *options) { o.timeout = timeout }
}

// WithHousing selects the housing to operate on, instead of the account's first housing.
func WithHousing(housingID string) Option {
	return func(o *options) { o.housingID = housingID }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithTokenSource replaces the Authenticator created by New. The credentials passed to New are then ignored.
func WithTokenSource(tokenSource TokenSource) Option {
	return func(o *options) { o.tokenSource = tokenSource }
}

// New returns a Client for the specified account. Call Connect before using the Client.
func New(credentials Credentials, opts ...Option) *Client {
	cfg := options{
		url:     DefaultURL,
		authURL: DefaultAuthURL,
		timeout: DefaultTimeout,
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.httpClient == nil {
		cfg.httpClient = &http.Client{}
	}
	if cfg.transport != nil {
		cfg.httpClient.Transport = cfg.transport
	}
	if cfg.tokenSource == nil {
		a := NewAuthenticator(credentials, cfg.httpClient, cfg.logger.With("component", "auth"))
		a.URL = cfg.authURL
		a.Timeout = cfg.timeout
		cfg.tokenSource = a
	}
	if !strings.HasSuffix(cfg.url, "/") {
		cfg.url += "/"
	}

	return &Client{
		HTTPClient: cfg.httpClient,
		auth:       cfg.tokenSource,
		baseURL:    cfg.url,
		housingID:  cfg.housingID,
		timeout:    cfg.timeout,
		logger:     cfg.logger,
	}
}

// Connect logs in and, unless a housing was configured, selects the account's first housing.
// Connect is not safe for concurrent use and should be called before any other call.
func (c *Client) Connect(ctx context.Context) error {
	if _, err := c.auth.EnsureValid(ctx); err != nil {
		return err
	}
	if c.housingID != "" {
		return nil
	}
	housings, err := c.GetHousings(ctx)
	if err != nil {
		return fmt.Errorf("housings: %w", err)
	}
	if len(housings) == 0 {
		return &StateError{Reason: "account has no housings"}
	}
	c.housingID = housings[0].ID
	c.logger.Debug("housing selected", "id", housings[0].ID, "name", housings[0].Name, "housings", len(housings))
	return nil
}

// HousingID returns the ID of the housing the client operates on.
func (c *Client) HousingID() string {
	return c.housingID
}

// ForHousing returns a Client for another housing of the same account. Both clients share the same session.
func (c *Client) ForHousing(housingID string) *Client {
	clone := *c
	clone.housingID = housingID
	return &clone
}

// Do performs an authenticated call to the Comap API. If body is not nil, it's sent as JSON. If out is not nil,
// the response is decoded into it. Non-2xx responses return an APIError. A 401 response invalidates the session,
// so the next call logs in again.
func (c *Client) Do(ctx context.Context, method string, path string, body any, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	token, err := c.auth.EnsureValid(ctx)
	if err != nil {
		return err
	}

	reqBody := io.Reader(http.NoBody)
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("comap: %s %s: encode: %w", method, path, err)
		}
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+strings.TrimPrefix(path, "/"), reqBody)
	if err != nil {
		return fmt.Errorf("comap: %s %s: %w", method, path, err)
	}
	requestID := uuid.NewString()
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", requestID)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		c.logger.Debug("call failed", "method", method, "path", path, "requestId", requestID, "err", err)
		return fmt.Errorf("comap: %s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("comap: %s %s: read: %w", method, path, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		c.auth.Invalidate()
		fallthrough
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		err = &APIError{Method: method, Path: path, StatusCode: resp.StatusCode, Body: errorBody(payload)}
	case out != nil && len(bytes.TrimSpace(payload)) > 0:
		if err = json.Unmarshal(payload, out); err != nil {
			err = fmt.Errorf("comap: %s %s: decode: %w", method, path, err)
		}
	}

	if err != nil {
		c.logger.Debug("call failed", "method", method, "path", path, "requestId", requestID, "err", err)
	}
	return err
}

func (c *Client) housingPath(elements ...string) string {
	return "thermal/housings/" + url.PathEscape(c.housingID) + "/" + joinPath(elements...)
}

func joinPath(elements ...string) string {
	escaped := make([]string, len(elements))
	for i, element := range elements {
		escaped[i] = url.PathEscape(element)
	}
	return strings.Join(escaped, "/")
}

func errorBody(payload []byte) string {
	body := strings.TrimSpace(string(payload))
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody] + "..."
	}
	return body
}
