package flags

import (
	"errors"
	"net/http"
)

var (
	ErrNotFound          = errors.New("flag not found")
	ErrDuplicate         = errors.New("flag already exists")
	ErrInvalidTransition = errors.New("invalid flag status transition")
	ErrInvalidFeedback   = errors.New("invalid flag feedback")
	ErrScreenshotMissing = errors.New("screenshot not found for flag back-reference")
)

// MapHTTPStatus maps flag errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrDuplicate):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrInvalidFeedback):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
