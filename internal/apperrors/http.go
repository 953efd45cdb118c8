package apperrors

import (
	"errors"
	"net/http"
)

// HTTPStatus maps an error to the appropriate HTTP status code.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrValidation), errors.Is(err, ErrInvalidBinding):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnknownJob), errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrJobNotReady), errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrRemoteService), errors.Is(err, ErrUnknownState):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Code returns the stable machine-readable code used in error envelopes.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return "INVALID_REQUEST"
	case errors.Is(err, ErrInvalidBinding):
		return "INVALID_BINDING"
	case errors.Is(err, ErrUnknownJob):
		return "UNKNOWN_JOB"
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrJobNotReady):
		return "JOB_NOT_READY"
	case errors.Is(err, ErrConflict):
		return "CONFLICT"
	case errors.Is(err, ErrUnknownState):
		return "UNKNOWN_STATE"
	case errors.Is(err, ErrRemoteService):
		return "EXECUTION_SERVICE_UNAVAILABLE"
	default:
		return "INTERNAL_ERROR"
	}
}
