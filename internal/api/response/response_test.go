package response_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kiranshivaraju/jobtrack/internal/api/response"
	"github.com/kiranshivaraju/jobtrack/internal/apperrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestJSON(t *testing.T) {
	w := httptest.NewRecorder()
	response.JSON(w, map[string]string{"job_id": "j1"})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	data := decode(t, w)["data"].(map[string]any)
	assert.Equal(t, "j1", data["job_id"])
}

func TestCreated(t *testing.T) {
	w := httptest.NewRecorder()
	response.Created(w, map[string]string{"job_id": "j1"})

	assert.Equal(t, http.StatusCreated, w.Code)
	data := decode(t, w)["data"].(map[string]any)
	assert.Equal(t, "j1", data["job_id"])
}

func TestAccepted(t *testing.T) {
	w := httptest.NewRecorder()
	response.Accepted(w, map[string]string{"cancel": "accepted"})

	assert.Equal(t, http.StatusAccepted, w.Code)
	data := decode(t, w)["data"].(map[string]any)
	assert.Equal(t, "accepted", data["cancel"])
}

func TestPage(t *testing.T) {
	w := httptest.NewRecorder()
	items := []map[string]string{{"job_id": "1"}, {"job_id": "2"}}

	response.Page(w, items, response.NewPageMeta(1, 20, 50))

	assert.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Len(t, body["data"].([]any), 2)

	m := body["meta"].(map[string]any)
	assert.Equal(t, float64(1), m["page"])
	assert.Equal(t, float64(20), m["limit"])
	assert.Equal(t, float64(50), m["total"])
	assert.Equal(t, true, m["has_next"])
}

func TestNewPageMeta_LastPage(t *testing.T) {
	assert.False(t, response.NewPageMeta(3, 20, 60).HasNext)
	assert.True(t, response.NewPageMeta(2, 20, 41).HasNext)
	assert.False(t, response.NewPageMeta(1, 20, 0).HasNext)
}

func TestError(t *testing.T) {
	w := httptest.NewRecorder()
	response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid params", map[string]string{"field": "job_id"})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	errObj := decode(t, w)["error"].(map[string]any)
	assert.Equal(t, "INVALID_REQUEST", errObj["code"])
	assert.Equal(t, "Invalid params", errObj["message"])
	assert.NotNil(t, errObj["details"])
}

func TestError_NoDetails(t *testing.T) {
	w := httptest.NewRecorder()
	response.Error(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)

	errObj := decode(t, w)["error"].(map[string]any)
	_, hasDetails := errObj["details"]
	assert.False(t, hasDetails)
}

func TestFromError(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		code    string
		message string
	}{
		{"validation", apperrors.Validation("job_id", "job_id is required"), http.StatusBadRequest, "INVALID_REQUEST", "job_id is required"},
		{"not found", apperrors.NotFound("job", "j1"), http.StatusNotFound, "NOT_FOUND", "job j1 not found"},
		{"unknown job", apperrors.UnknownJob("j1"), http.StatusNotFound, "UNKNOWN_JOB", "job j1 is unknown to the execution service"},
		{"not ready", apperrors.NotReady("j1", "running"), http.StatusConflict, "JOB_NOT_READY", `job j1 is not complete (state "running")`},
		{"conflict", apperrors.Conflict("job", "j1"), http.StatusConflict, "CONFLICT", "job j1 already exists"},
		{"remote", apperrors.RemoteService("j1", "check_status", nil), http.StatusBadGateway, "EXECUTION_SERVICE_UNAVAILABLE", "check_status failed for job j1"},
		{"unclassified", errors.New("pool exhausted"), http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodGet, "/api/v1/jobs/j1", nil)

			response.FromError(w, r, tt.err)

			assert.Equal(t, tt.status, w.Code)
			errObj := decode(t, w)["error"].(map[string]any)
			assert.Equal(t, tt.code, errObj["code"])
			assert.Equal(t, tt.message, errObj["message"])
		})
	}
}

func TestFromError_FieldDetails(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/api/v1/jobs", nil)

	response.FromError(w, r, apperrors.Validation("app_id", "app_id is required"))

	errObj := decode(t, w)["error"].(map[string]any)
	assert.Equal(t, map[string]any{"field": "app_id"}, errObj["details"])
}
