package comap

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
)

// ErrNotAuthenticated is wrapped in an AuthError when a refresh is attempted on a session that holds no refresh token.
var ErrNotAuthenticated = errors.New("not authenticated")

// AuthError is returned when the identity provider rejects a login or a refresh. An AuthError invalidates the session:
// the next call logs in again with the configured credentials.
type AuthError struct {
	Flow       string
	StatusCode int
	Err        error
}

func (e *AuthError) Error() string {
	msg := "comap: " + e.Flow + " failed"
	if e.StatusCode != 0 {
		msg += ": " + strconv.Itoa(e.StatusCode) + " " + http.StatusText(e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// APIError is returned when the Comap API answers with a non-2xx status.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("comap: %s %s: %d %s", e.Method, e.Path, e.StatusCode, http.StatusText(e.StatusCode))
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// IsConflict reports whether err is an APIError with status 409.
func IsConflict(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusConflict
}

// ConflictRetryExhaustedError is returned when setting a temporary instruction still conflicts after the existing
// instruction was removed.
type ConflictRetryExhaustedError struct {
	ZoneID string
	Err    error
}

func (e *ConflictRetryExhaustedError) Error() string {
	return "comap: zone " + e.ZoneID + ": temporary instruction still conflicts after removal: " + e.Err.Error()
}

func (e *ConflictRetryExhaustedError) Unwrap() error {
	return e.Err
}

// StateError is returned when data received from the Comap API violates an invariant, e.g. a housing without an
// activated program, or a zone without an id.
type StateError struct {
	Reason string
}

func (e *StateError) Error() string {
	return "comap: invalid state: " + e.Reason
}
