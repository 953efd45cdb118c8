// Package response writes the JSON envelopes every endpoint returns:
// {"data": ...} on success and {"error": {"code", "message", "details"}} on failure.
package response

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/kiranshivaraju/jobtrack/internal/apperrors"
)

type envelope struct {
	Data any `json:"data"`
}

type pageEnvelope struct {
	Data any      `json:"data"`
	Meta PageMeta `json:"meta"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// PageMeta describes one page of a listing.
type PageMeta struct {
	Page    int  `json:"page"`
	Limit   int  `json:"limit"`
	Total   int  `json:"total"`
	HasNext bool `json:"has_next"`
}

// NewPageMeta computes HasNext from the page position and total.
func NewPageMeta(page, limit, total int) PageMeta {
	return PageMeta{
		Page:    page,
		Limit:   limit,
		Total:   total,
		HasNext: page*limit < total,
	}
}

func JSON(w http.ResponseWriter, data any) {
	write(w, http.StatusOK, envelope{Data: data})
}

func Created(w http.ResponseWriter, data any) {
	write(w, http.StatusCreated, envelope{Data: data})
}

func Accepted(w http.ResponseWriter, data any) {
	write(w, http.StatusAccepted, envelope{Data: data})
}

// Page writes a listing with its pagination metadata.
func Page(w http.ResponseWriter, data any, meta PageMeta) {
	write(w, http.StatusOK, pageEnvelope{Data: data, Meta: meta})
}

func Error(w http.ResponseWriter, status int, code, message string, details any) {
	write(w, status, errorEnvelope{Error: errorBody{
		Code:    code,
		Message: message,
		Details: details,
	}})
}

// FromError classifies err through apperrors and writes the matching envelope.
// Unclassified errors are logged and reported as a generic 500.
func FromError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		Error(w, status, apperrors.Code(err), "An unexpected error occurred", nil)
		return
	}

	var details any
	var appErr *apperrors.Error
	if errors.As(err, &appErr) && appErr.Field != "" {
		details = map[string]string{"field": appErr.Field}
	}
	Error(w, status, apperrors.Code(err), err.Error(), details)
}

func write(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("writing response body failed", "error", err)
	}
}
