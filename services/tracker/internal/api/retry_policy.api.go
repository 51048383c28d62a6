package api

import (
	"errors"
	"net"
	"net/http"
	"syscall"
)

// IsRetryable reports whether a failed call is worth retrying later.
// The same classification decides what counts against the circuit breaker:
// a rejected request (4xx) says nothing about the health of the service.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return isRetryableAPIError(err) || isRetryableNetworkError(err) || isRetryableSystemError(err)
}

func isRetryableAPIError(err error) bool {
	apiErr, ok := AsError(err)
	if !ok {
		return false
	}
	if apiErr.Network {
		return true
	}
	// HTTP 500-599: server side -> RETRY
	if apiErr.Code >= 500 && apiErr.Code < 600 {
		return true
	}
	// throttling -> retry
	return apiErr.Code == http.StatusTooManyRequests
}

func isRetryableNetworkError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}

func isRetryableSystemError(err error) bool {
	// connection refused / reset
	return errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET)
}
