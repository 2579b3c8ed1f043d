package vision

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/sony/gobreaker"
)

var (
	// ErrTimeout indicates a model call did not finish within its per-attempt timeout.
	ErrTimeout = errors.New("vision call timed out")
	// ErrMalformedResponse indicates the model output could not be decoded
	// into the expected schema. It is never retried.
	ErrMalformedResponse = errors.New("malformed vision response")
	// ErrEmptyResponse indicates the model returned no choices or empty content.
	ErrEmptyResponse = errors.New("empty vision response")
	// ErrEmptyImage indicates no image bytes were supplied.
	ErrEmptyImage = errors.New("image data required")
)

// StatusError is a non-2xx response from the model endpoint.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("vision endpoint returned %d: %s", e.StatusCode, e.Body)
}

// Transient reports whether the status is worth retrying (429 or 5xx).
func (e *StatusError) Transient() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}

// IsTransient reports whether err is a failure that a later attempt may not
// repeat: timeouts, network errors, rate limiting, server errors, and an
// open circuit breaker. Decode failures, cancellation, and other client
// errors are permanent.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrMalformedResponse) || errors.Is(err, ErrEmptyImage) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return true
	}

	var status *StatusError
	if errors.As(err, &status) {
		return status.Transient()
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	return errors.Is(err, ErrEmptyResponse)
}
