package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	domainErr "github.com/Tanmoy095/LogiSynapse/services/tracker/internal/domain/errors"
)

const CodeNetworkError = "NETWORK_ERROR"

// Error is the typed rejection payload every API failure is converted to
// before it reaches the state container. Transport exceptions never escape raw.
type Error struct {
	Code      int       `json:"code"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	// Network is set when no HTTP response was received at all.
	Network bool `json:"network,omitempty"`

	cause error
}

func (e *Error) Error() string {
	if e.Network {
		return fmt.Sprintf("network error: %s", e.Message)
	}
	return fmt.Sprintf("api error %d: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Is lets callers match with errors.Is(err, domainErr.ErrApi) and, for
// transport failures, errors.Is(err, domainErr.ErrNetwork).
func (e *Error) Is(target error) bool {
	switch target {
	case domainErr.ErrApi:
		return true
	case domainErr.ErrNetwork:
		return e.Network
	}
	return false
}

// ErrorCode is picked up by the telemetry recorder as the error descriptor code.
func (e *Error) ErrorCode() string {
	if e.Network {
		return CodeNetworkError
	}
	return fmt.Sprintf("HTTP_%d", e.Code)
}

// NewError builds a rejection with the given HTTP-ish code.
func NewError(code int, message string) *Error {
	return &Error{Code: code, Message: message, Timestamp: time.Now().UTC()}
}

// ValidationError rejects a request locally, before any network call.
func ValidationError(message string) *Error {
	return &Error{
		Code:      http.StatusBadRequest,
		Message:   message,
		Timestamp: time.Now().UTC(),
		cause:     domainErr.ErrInvalidInput,
	}
}

func networkError(err error) *Error {
	return &Error{
		// no status was received; surfaced as 500 like any unknown failure
		Code:      http.StatusInternalServerError,
		Message:   err.Error(),
		Timestamp: time.Now().UTC(),
		Network:   true,
		cause:     err,
	}
}

// canceledError reports a request abandoned by its caller. It is not
// retryable and never counts against the breaker.
func canceledError(err error) *Error {
	return &Error{
		Code:      http.StatusRequestTimeout,
		Message:   "request canceled: " + err.Error(),
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

func circuitOpenError() *Error {
	return &Error{
		Code:      http.StatusServiceUnavailable,
		Message:   "Service unavailable",
		Timestamp: time.Now().UTC(),
		cause:     domainErr.ErrCircuitOpen,
	}
}

// Wrap converts any failure into a rejection payload. An *Error anywhere in
// the chain is returned as is; anything else becomes a 500 keeping err as cause.
func Wrap(err error) *Error {
	if err == nil {
		return nil
	}
	if apiErr, ok := AsError(err); ok {
		return apiErr
	}
	return &Error{
		Code:      http.StatusInternalServerError,
		Message:   err.Error(),
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// AsError extracts the *Error from err, if any.
func AsError(err error) (*Error, bool) {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}
