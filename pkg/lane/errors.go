package lane

import (
	"context"
	"errors"

	"github.com/sony/gobreaker"

	"github.com/fathomsearch/fathom/pkg/backend"
)

// ErrorKind is the structured error taxonomy a lane reports. Raw backend
// errors never cross the lane boundary.
type ErrorKind string

const (
	ErrNone          ErrorKind = ""
	ErrNetwork       ErrorKind = "network_error"
	ErrRateLimited   ErrorKind = "rate_limited"
	ErrAuthFailed    ErrorKind = "auth_failed"
	ErrEmpty         ErrorKind = "empty"
	ErrTimeout       ErrorKind = "timeout"
	ErrCancelledKind ErrorKind = "cancelled"
)

// Retryable reports whether a retry inside the lane budget makes sense.
// Auth failures and timeouts do not heal on retry.
func (k ErrorKind) Retryable() bool {
	return k == ErrNetwork || k == ErrRateLimited
}

// MapError classifies an error from a backend call into the taxonomy.
func MapError(err error) ErrorKind {
	switch {
	case err == nil:
		return ErrNone
	case errors.Is(err, context.DeadlineExceeded):
		return ErrTimeout
	case errors.Is(err, context.Canceled):
		return ErrCancelledKind
	case errors.Is(err, backend.ErrRateLimited):
		return ErrRateLimited
	case errors.Is(err, backend.ErrAuthFailed):
		return ErrAuthFailed
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return ErrNetwork
	default:
		return ErrNetwork
	}
}
