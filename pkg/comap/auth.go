package comap

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultClientID is the Cognito app client used by the Comap web application.
	DefaultClientID = "56jcvrtejpracljtirq7qnob44"
	// DefaultAuthURL is the Cognito identity provider serving Comap accounts.
	DefaultAuthURL = "https://cognito-idp.eu-west-3.amazonaws.com"
	// SafetyMargin is subtracted from a token's lifetime when deciding whether it needs to be refreshed.
	SafetyMargin = 60 * time.Second

	appOrigin        = "https://app.comapsmarthome.com"
	initiateAuth     = "AWSCognitoIdentityProviderService.InitiateAuth"
	flowLogin        = "USER_PASSWORD_AUTH"
	flowRefreshToken = "REFRESH_TOKEN_AUTH"
)

// Credentials identify a Comap account.
type Credentials struct {
	Username string
	Password string
	ClientID string
}

// TokenState is the result of a login or refresh.
type TokenState struct {
	AccessToken  string
	RefreshToken string
	IssuedAt     time.Time
	TTL          time.Duration
}

// Valid returns true if the access token can still be used at time now, i.e. if it won't expire within SafetyMargin.
func (t TokenState) Valid(now time.Time) bool {
	return t.AccessToken != "" && now.Sub(t.IssuedAt) < t.TTL-SafetyMargin
}

func (t TokenState) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Time("issued", t.IssuedAt),
		slog.Duration("ttl", t.TTL),
		slog.Bool("refreshable", t.RefreshToken != ""),
	)
}

// Authenticator logs in to the Comap identity provider and keeps the resulting access token valid.
// It is safe for concurrent use: concurrent callers share a single login or refresh.
type Authenticator struct {
	HTTPClient *http.Client
	URL        string
	// Timeout bounds a single login or refresh.
	Timeout     time.Duration
	credentials Credentials
	logger      *slog.Logger
	now         func() time.Time
	flight      singleflight.Group
	lock        sync.RWMutex
	token       TokenState
}

// NewAuthenticator returns an Authenticator for the provided credentials. If httpClient is nil, http.DefaultClient is used.
func NewAuthenticator(credentials Credentials, httpClient *http.Client, logger *slog.Logger) *Authenticator {
	if credentials.ClientID == "" {
		credentials.ClientID = DefaultClientID
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Authenticator{
		HTTPClient:  httpClient,
		URL:         DefaultAuthURL,
		Timeout:     DefaultTimeout,
		credentials: credentials,
		logger:      logger,
		now:         time.Now,
	}
}

// Token returns the current token state. The token may have expired.
func (a *Authenticator) Token() TokenState {
	a.lock.RLock()
	defer a.lock.RUnlock()
	return a.token
}

// Invalidate discards the current token state. The next call to EnsureValid logs in again.
func (a *Authenticator) Invalidate() {
	a.lock.Lock()
	defer a.lock.Unlock()
	a.token = TokenState{}
}

// Login authenticates with the account's username and password.
func (a *Authenticator) Login(ctx context.Context) (TokenState, error) {
	return a.do(ctx, a.login)
}

// Refresh exchanges the refresh token for a new access token. The refresh token itself is kept.
// If the identity provider rejects the refresh, the session is invalidated.
func (a *Authenticator) Refresh(ctx context.Context) (TokenState, error) {
	return a.do(ctx, a.refresh)
}

// EnsureValid returns a token that is valid for at least SafetyMargin. If the current token is about to expire,
// it is refreshed first. If the session holds no token, EnsureValid logs in.
func (a *Authenticator) EnsureValid(ctx context.Context) (TokenState, error) {
	if token := a.Token(); token.Valid(a.now()) {
		return token, nil
	}
	return a.do(ctx, func(ctx context.Context) (TokenState, error) {
		// another caller may have renewed the token while we were waiting
		token := a.Token()
		if token.Valid(a.now()) {
			return token, nil
		}
		if token.RefreshToken == "" {
			return a.login(ctx)
		}
		return a.refresh(ctx)
	})
}

// do runs f once for all concurrent callers. f runs under its own timeout: one caller's cancellation must not
// fail the others.
func (a *Authenticator) do(ctx context.Context, f func(context.Context) (TokenState, error)) (TokenState, error) {
	ch := a.flight.DoChan("token", func() (any, error) {
		timeout := a.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		defer cancel()
		return f(ctx)
	})
	select {
	case <-ctx.Done():
		return TokenState{}, ctx.Err()
	case result := <-ch:
		if result.Err != nil {
			return TokenState{}, result.Err
		}
		return result.Val.(TokenState), nil
	}
}

func (a *Authenticator) login(ctx context.Context) (TokenState, error) {
	a.logger.Debug("logging in", "username", a.credentials.Username)
	issued := a.now()
	result, err := a.initiateAuth(ctx, flowLogin, map[string]string{
		"USERNAME": a.credentials.Username,
		"PASSWORD": a.credentials.Password,
	})
	if err == nil {
		var ttl time.Duration
		if ttl, err = result.ttl(issued); err != nil {
			err = &AuthError{Err: err}
		} else {
			token := TokenState{
				AccessToken:  result.AccessToken,
				RefreshToken: result.RefreshToken,
				IssuedAt:     issued,
				TTL:          ttl,
			}
			a.store(token)
			a.logger.Debug("logged in", "token", token, "subject", subject(result.AccessToken))
			return token, nil
		}
	}
	return TokenState{}, a.failed("login", err)
}

func (a *Authenticator) refresh(ctx context.Context) (TokenState, error) {
	current := a.Token()
	if current.RefreshToken == "" {
		return TokenState{}, &AuthError{Flow: "refresh", Err: ErrNotAuthenticated}
	}
	a.logger.Debug("refreshing token", "token", current)
	issued := a.now()
	result, err := a.initiateAuth(ctx, flowRefreshToken, map[string]string{
		"REFRESH_TOKEN": current.RefreshToken,
	})
	if err == nil {
		var ttl time.Duration
		if ttl, err = result.ttl(issued); err != nil {
			err = &AuthError{Err: err}
		} else {
			if result.RefreshToken != "" && result.RefreshToken != current.RefreshToken {
				a.logger.Debug("ignoring rotated refresh token")
			}
			token := TokenState{
				AccessToken:  result.AccessToken,
				RefreshToken: current.RefreshToken,
				IssuedAt:     issued,
				TTL:          ttl,
			}
			a.store(token)
			a.logger.Debug("token refreshed", "token", token)
			return token, nil
		}
	}
	return TokenState{}, a.failed("refresh", err)
}

// failed handles a failed login or refresh. If the identity provider rejected it, the session is invalidated and
// an AuthError is returned. Transport errors leave the session intact, so the next call tries again.
func (a *Authenticator) failed(flow string, err error) error {
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		a.logger.Warn(flow+" failed", "err", err)
		return fmt.Errorf("comap: %s: %w", flow, err)
	}
	authErr.Flow = flow
	a.Invalidate()
	a.logger.Warn(flow+" rejected. session invalidated", "err", err)
	return authErr
}

func (a *Authenticator) store(token TokenState) {
	a.lock.Lock()
	defer a.lock.Unlock()
	a.token = token
}

type authRequest struct {
	AuthFlow       string            `json:"AuthFlow"`
	AuthParameters map[string]string `json:"AuthParameters"`
	ClientID       string            `json:"ClientId"`
}

type authResponse struct {
	AuthenticationResult authenticationResult `json:"AuthenticationResult"`
}

type authenticationResult struct {
	AccessToken  string `json:"AccessToken"`
	RefreshToken string `json:"RefreshToken"`
	IDToken      string `json:"IdToken"`
	TokenType    string `json:"TokenType"`
	ExpiresIn    int    `json:"ExpiresIn"`
}

type cognitoError struct {
	Type    string `json:"__type"`
	Message string `json:"message"`
}

func (a *Authenticator) initiateAuth(ctx context.Context, flow string, params map[string]string) (authenticationResult, error) {
	body, err := json.Marshal(authRequest{AuthFlow: flow, AuthParameters: params, ClientID: a.credentials.ClientID})
	if err != nil {
		return authenticationResult{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.URL, bytes.NewReader(body))
	if err != nil {
		return authenticationResult{}, err
	}
	req.Header.Set("Content-Type", "application/x-amz-json-1.1")
	req.Header.Set("X-Amz-Target", initiateAuth)
	req.Header.Set("Origin", appOrigin)
	req.Header.Set("Referer", appOrigin)

	resp, err := a.HTTPClient.Do(req)
	if err != nil {
		return authenticationResult{}, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		authErr := AuthError{StatusCode: resp.StatusCode}
		var cErr cognitoError
		if payload, _ := io.ReadAll(resp.Body); json.Unmarshal(payload, &cErr) == nil && cErr.Message != "" {
			authErr.Err = errors.New(cErr.Type + ": " + cErr.Message)
		}
		return authenticationResult{}, &authErr
	}

	var response authResponse
	if err = json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return authenticationResult{}, &AuthError{StatusCode: resp.StatusCode, Err: fmt.Errorf("decode: %w", err)}
	}
	if response.AuthenticationResult.AccessToken == "" {
		return authenticationResult{}, &AuthError{StatusCode: resp.StatusCode, Err: errors.New("no access token received")}
	}
	return response.AuthenticationResult, nil
}

// ttl returns the lifetime of the access token. If the identity provider didn't report one, it's taken from the token's claims.
func (r authenticationResult) ttl(issued time.Time) (time.Duration, error) {
	if r.ExpiresIn > 0 {
		return time.Duration(r.ExpiresIn) * time.Second, nil
	}
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(r.AccessToken, &claims); err != nil {
		return 0, fmt.Errorf("token lifetime: %w", err)
	}
	if claims.ExpiresAt == nil {
		return 0, errors.New("token lifetime: no expiry received")
	}
	start := issued
	if claims.IssuedAt != nil {
		start = claims.IssuedAt.Time
	}
	return claims.ExpiresAt.Sub(start), nil
}

func subject(accessToken string) string {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, &claims); err != nil {
		return ""
	}
	return claims.Subject
}
