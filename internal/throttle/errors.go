package throttle

import (
	"errors"
	"net/http"
)

var ErrInvalidLevel = errors.New("invalid throttle level")

// MapHTTPStatus maps throttle errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	if errors.Is(err, ErrInvalidLevel) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
