// Package handler holds the HTTP handlers of the job tracking API.
package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kiranshivaraju/jobtrack/internal/api/response"
	"github.com/kiranshivaraju/jobtrack/internal/apperrors"
	"github.com/kiranshivaraju/jobtrack/internal/execsvc"
	"github.com/kiranshivaraju/jobtrack/internal/job"
	"github.com/kiranshivaraju/jobtrack/internal/store"
	"github.com/kiranshivaraju/jobtrack/internal/tracker"
	"github.com/kiranshivaraju/jobtrack/pkg/models"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
	maxBodyBytes     = 1 << 20
)

// JobService defines the tracker operations the handlers depend on.
type JobService interface {
	Register(ctx context.Context, p tracker.RegisterParams) (*job.Facade, error)
	Adopt(ctx context.Context, p tracker.AdoptParams) (*job.Facade, error)
	List(ctx context.Context, filter store.RecordFilter) ([]*models.JobRecord, int, error)
	Status(ctx context.Context, jobID string) (*tracker.StatusReport, error)
	Statuses(ctx context.Context, jobIDs []string) []tracker.BatchStatus
	Log(ctx context.Context, jobID string, firstLine, numLines int) (*job.LogPage, error)
	Output(ctx context.Context, jobID string) (*job.Output, error)
	Cancel(ctx context.Context, jobID string) (execsvc.CancelResult, error)
	Info(ctx context.Context, jobID string) (*job.Info, error)
	Params(ctx context.Context, jobID string) (*models.JobParams, error)
}

// Jobs serves the /api/v1/jobs routes.
type Jobs struct {
	svc JobService
}

func NewJobs(svc JobService) *Jobs {
	return &Jobs{svc: svc}
}

type recordResponse struct {
	JobID      string         `json:"job_id"`
	AppID      string         `json:"app_id"`
	AppVersion string         `json:"app_version,omitempty"`
	Tag        string         `json:"tag"`
	CellID     string         `json:"cell_id,omitempty"`
	Inputs     map[string]any `json:"inputs"`
}

func toRecordResponse(rec *job.Record) recordResponse {
	return recordResponse{
		JobID:      rec.JobID,
		AppID:      rec.AppID,
		AppVersion: rec.AppVersion,
		Tag:        rec.Tag,
		CellID:     rec.CellID,
		Inputs:     rec.Inputs,
	}
}

type cancelResponse struct {
	JobID  string `json:"job_id"`
	Cancel string `json:"cancel"`
}

// Register handles POST /api/v1/jobs.
func (h *Jobs) Register(w http.ResponseWriter, r *http.Request) {
	var req tracker.RegisterParams
	if !decodeBody(w, r, &req) {
		return
	}

	f, err := h.svc.Register(r.Context(), req)
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	response.Created(w, toRecordResponse(f.Record()))
}

// Adopt handles POST /api/v1/jobs/adopt.
func (h *Jobs) Adopt(w http.ResponseWriter, r *http.Request) {
	var req tracker.AdoptParams
	if !decodeBody(w, r, &req) {
		return
	}

	f, err := h.svc.Adopt(r.Context(), req)
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	response.JSON(w, toRecordResponse(f.Record()))
}

// List handles GET /api/v1/jobs?app_id=&state=&page=&limit=.
func (h *Jobs) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	page, err := intParam(q.Get("page"), 1)
	if err != nil || page < 1 {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "page must be a positive integer", nil)
		return
	}
	limit, err := intParam(q.Get("limit"), defaultPageLimit)
	if err != nil || limit < 1 || limit > maxPageLimit {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "limit must be between 1 and 100", nil)
		return
	}

	state := q.Get("state")
	if state != "" {
		s, err := job.ParseState("", state)
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "state must be one of queued, running, completed, error, cancelled", nil)
			return
		}
		state = s.String()
	}

	records, total, err := h.svc.List(r.Context(), store.RecordFilter{
		AppID: q.Get("app_id"),
		State: state,
		Page:  page,
		Limit: limit,
	})
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	if records == nil {
		records = []*models.JobRecord{}
	}
	response.Page(w, records, response.NewPageMeta(page, limit, total))
}

// BatchStatus handles GET /api/v1/jobs/status?ids=a,b,c.
func (h *Jobs) BatchStatus(w http.ResponseWriter, r *http.Request) {
	var ids []string
	seen := make(map[string]bool)
	for _, raw := range strings.Split(r.URL.Query().Get("ids"), ",") {
		id := strings.TrimSpace(raw)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}

	if len(ids) == 0 {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "ids is required", nil)
		return
	}
	if len(ids) > tracker.MaxBatch {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
			"at most "+strconv.Itoa(tracker.MaxBatch)+" ids per request", nil)
		return
	}

	response.JSON(w, h.svc.Statuses(r.Context(), ids))
}

// Info handles GET /api/v1/jobs/{jobID}.
func (h *Jobs) Info(w http.ResponseWriter, r *http.Request) {
	info, err := h.svc.Info(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	response.JSON(w, info)
}

// Status handles GET /api/v1/jobs/{jobID}/status.
func (h *Jobs) Status(w http.ResponseWriter, r *http.Request) {
	rep, err := h.svc.Status(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	response.JSON(w, rep)
}

// Log handles GET /api/v1/jobs/{jobID}/log?first_line=&num_lines=.
// A missing num_lines returns everything from first_line to the end.
func (h *Jobs) Log(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	first, err := intParam(q.Get("first_line"), 0)
	if err != nil || first < 0 {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "first_line must be a non-negative integer", nil)
		return
	}
	num, err := intParam(q.Get("num_lines"), job.ToEnd)
	if err != nil || (num < 0 && num != job.ToEnd) {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "num_lines must be a non-negative integer", nil)
		return
	}

	page, err := h.svc.Log(r.Context(), chi.URLParam(r, "jobID"), first, num)
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	response.JSON(w, page)
}

// Output handles GET /api/v1/jobs/{jobID}/output. An incomplete job is a 200
// with complete=false and a message, not an error.
func (h *Jobs) Output(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.Output(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	response.JSON(w, out)
}

// Params handles GET /api/v1/jobs/{jobID}/params.
func (h *Jobs) Params(w http.ResponseWriter, r *http.Request) {
	params, err := h.svc.Params(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	response.JSON(w, params)
}

// Cancel handles POST /api/v1/jobs/{jobID}/cancel.
func (h *Jobs) Cancel(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	res, err := h.svc.Cancel(r.Context(), jobID)
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	response.Accepted(w, cancelResponse{JobID: jobID, Cancel: res.String()})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
		return false
	}
	return true
}

func intParam(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperrors.Validation(raw, "not an integer")
	}
	return n, nil
}
