// Package apperrors holds the error taxonomy shared by the storage, chathub
// and api layers.
package apperrors

import (
	"errors"
	"net/http"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")

	// ErrAuthentication is returned for a missing, malformed or unknown token.
	ErrAuthentication = errors.New("authentication failed")

	// ErrConcurrencyConflict means a conditional commit lost a race.
	// Callers treat it as "nothing happened", never as a failure.
	ErrConcurrencyConflict = errors.New("concurrency conflict")

	// ErrStaleReference is returned when a client action references a
	// message or rephrasing that is not owned by the acting user.
	ErrStaleReference = errors.New("stale reference")

	ErrExternalService = errors.New("external service failure")

	// ErrDataIntegrity marks a broken structural invariant, e.g. a chatroom
	// whose member count is not two.
	ErrDataIntegrity = errors.New("data integrity violation")
)

type APIError struct {
	Message string `json:"error"`
	Code    int    `json:"code"`
}

func (e *APIError) Error() string {
	return e.Message
}

func NewAPIError(message string, code int) *APIError {
	return &APIError{
		Message: message,
		Code:    code,
	}
}

// HTTPStatusFromError maps a (possibly wrapped) error to a response status.
func HTTPStatusFromError(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrAuthentication):
		return http.StatusUnauthorized
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrStaleReference):
		return http.StatusForbidden
	case errors.Is(err, ErrConcurrencyConflict):
		return http.StatusConflict
	case errors.Is(err, ErrExternalService):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
