// services/tracker/internal/domain/errors/errors.domain.go
package errors

import "errors"

// Standard Sentinel Errors
// Callers match these with errors.Is; concrete errors wrap them with %w
// so the original cause stays readable in logs.

var (
	// Configuration Errors (fatal at startup)
	ErrConfiguration = errors.New("configuration error")

	// Persistence Errors
	ErrSizeLimitExceeded = errors.New("state size limit exceeded")
	ErrDecryptionFailure = errors.New("decryption failure")

	// Transport Errors
	ErrNetwork     = errors.New("network error")
	ErrApi         = errors.New("api error")
	ErrCircuitOpen = errors.New("service unavailable: circuit open")

	// Programmer Errors
	ErrArgumentLimitExceeded = errors.New("selector argument limit exceeded")
	ErrInvalidInput          = errors.New("invalid input arguments")
	ErrInvalidAction         = errors.New("invalid action payload")
)
