package errors

import (
	"errors"
	"net/http"
)

// MapToHTTPStatus translates domain errors for the HTTP API.
func MapToHTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrNotChatMember):
		return http.StatusForbidden
	case errors.Is(err, ErrChatNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
