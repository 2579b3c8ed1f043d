package screenshots

import (
	"errors"
	"net/http"
)

var (
	ErrNotFound          = errors.New("screenshot not found")
	ErrDuplicate         = errors.New("screenshot already exists")
	ErrNotClaimable      = errors.New("screenshot is not pending")
	ErrInvalidTransition = errors.New("screenshot cannot be reset from its current status")
)

// MapHTTPStatus maps screenshot errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrDuplicate), errors.Is(err, ErrNotClaimable), errors.Is(err, ErrInvalidTransition):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
