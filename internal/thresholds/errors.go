package thresholds

import (
	"errors"
	"net/http"
)

var (
	ErrInvalidLevel    = errors.New("invalid threshold level")
	ErrInvalidOverride = errors.New("invalid category override")
)

// MapHTTPStatus maps threshold errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	if errors.Is(err, ErrInvalidLevel) || errors.Is(err, ErrInvalidOverride) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
