package approvals

import (
	"errors"
	"net/http"
)

var (
	ErrInvalidStatus   = errors.New("invalid approval status")
	ErrInvalidCategory = errors.New("invalid concern category")
	ErrMissingApp      = errors.New("app identifier required")
)

// MapHTTPStatus maps approval errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrInvalidStatus),
		errors.Is(err, ErrInvalidCategory),
		errors.Is(err, ErrMissingApp):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
