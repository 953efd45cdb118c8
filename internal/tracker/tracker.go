// Package tracker owns the jobs a server process follows: one Facade per live job
// id, persisted job-info records, the cached last status and state-change events.
// Facades of jobs observed in a terminal state are released and rebuilt from the
// store on the next request.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kiranshivaraju/jobtrack/internal/apperrors"
	"github.com/kiranshivaraju/jobtrack/internal/binding"
	"github.com/kiranshivaraju/jobtrack/internal/cache"
	"github.com/kiranshivaraju/jobtrack/internal/events"
	"github.com/kiranshivaraju/jobtrack/internal/execsvc"
	"github.com/kiranshivaraju/jobtrack/internal/job"
	"github.com/kiranshivaraju/jobtrack/internal/observability"
	"github.com/kiranshivaraju/jobtrack/internal/store"
	"github.com/kiranshivaraju/jobtrack/pkg/models"
)

const (
	defaultStatusTTL        = 30 * time.Minute
	defaultBatchConcurrency = 8
	// MaxBatch bounds the number of ids accepted by Statuses.
	MaxBatch = 100
)

// Deps are the collaborators of a Tracker. Events may be nil.
type Deps struct {
	Client  execsvc.Client
	Store   store.Store
	Cache   cache.Cache
	Events  events.Publisher
	Specs   job.SpecSource
	Vars    binding.LookupFunc
	Metrics *observability.Metrics

	StatusTTL        time.Duration
	BatchConcurrency int
}

// RegisterParams describes a job just submitted to the execution service.
type RegisterParams struct {
	JobID      string         `json:"job_id"`
	AppID      string         `json:"app_id"`
	AppVersion string         `json:"app_version"`
	Tag        string         `json:"tag"`
	CellID     string         `json:"cell_id"`
	Inputs     map[string]any `json:"inputs"`
}

// AdoptParams identifies a job that was submitted elsewhere.
type AdoptParams struct {
	JobID  string `json:"job_id"`
	AppID  string `json:"app_id"`
	Tag    string `json:"tag"`
	CellID string `json:"cell_id"`
}

// StatusReport is one observed job status.
type StatusReport struct {
	JobID    string                `json:"job_id"`
	State    job.State             `json:"state"`
	Finished bool                  `json:"finished"`
	Snapshot *models.StateSnapshot `json:"snapshot,omitempty"`
}

// BatchStatus is the outcome for one id of a Statuses call.
type BatchStatus struct {
	JobID     string    `json:"job_id"`
	State     job.State `json:"state,omitempty"`
	Finished  bool      `json:"finished"`
	ErrorCode string    `json:"error_code,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// Tracker serves job operations by id.
type Tracker struct {
	client    execsvc.Client
	store     store.Store
	cache     cache.Cache
	events    events.Publisher
	specs     job.SpecSource
	vars      binding.LookupFunc
	metrics   *observability.Metrics
	statusTTL time.Duration
	batch     int

	mu      sync.Mutex
	facades map[string]*job.Facade
}

// New creates a Tracker.
func New(deps Deps) *Tracker {
	t := &Tracker{
		client:    deps.Client,
		store:     deps.Store,
		cache:     deps.Cache,
		events:    deps.Events,
		specs:     deps.Specs,
		vars:      deps.Vars,
		metrics:   deps.Metrics,
		statusTTL: deps.StatusTTL,
		batch:     deps.BatchConcurrency,
		facades:   make(map[string]*job.Facade),
	}
	if t.events == nil {
		t.events = events.NopPublisher{}
	}
	if t.statusTTL <= 0 {
		t.statusTTL = defaultStatusTTL
	}
	if t.batch <= 0 {
		t.batch = defaultBatchConcurrency
	}
	return t
}

// Register records a newly submitted job and starts tracking it.
func (t *Tracker) Register(ctx context.Context, p RegisterParams) (*job.Facade, error) {
	rec, err := job.NewRecord(p.JobID, p.AppID, p.Inputs,
		job.WithAppVersion(p.AppVersion),
		job.WithTag(p.Tag),
		job.WithCellID(p.CellID),
	)
	if err != nil {
		return nil, err
	}

	if err := t.persist(ctx, rec); err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "job registered", "job_id", rec.JobID, "app_id", rec.AppID, "tag", rec.Tag)
	return t.track(rec), nil
}

// Adopt starts tracking a job submitted elsewhere. Its launch parameters are
// read from the execution service once. Adopting a job that is already tracked
// returns the existing facade without a remote call.
func (t *Tracker) Adopt(ctx context.Context, p AdoptParams) (*job.Facade, error) {
	if p.JobID == "" {
		return nil, apperrors.Validation("job_id", "job_id is required")
	}
	if f, err := t.Facade(ctx, p.JobID); err == nil {
		return f, nil
	} else if !errors.Is(err, apperrors.ErrNotFound) {
		return nil, err
	}

	info, err := t.client.GetParams(ctx, p.JobID)
	if err != nil {
		return nil, err
	}

	rec, err := job.FromState(p.JobID, *info, p.AppID, p.Tag, p.CellID)
	if err != nil {
		return nil, err
	}

	if err := t.persist(ctx, rec); err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "job adopted", "job_id", rec.JobID, "app_id", rec.AppID, "service_ver", rec.AppVersion)
	return t.track(rec), nil
}

// Facade returns the facade for jobID, rehydrating it from the store without
// contacting the execution service when it is not in memory.
func (t *Tracker) Facade(ctx context.Context, jobID string) (*job.Facade, error) {
	t.mu.Lock()
	f, ok := t.facades[jobID]
	t.mu.Unlock()
	if ok {
		return f, nil
	}

	m, err := t.store.GetJobRecord(ctx, jobID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperrors.NotFound("job", jobID)
	}
	if err != nil {
		return nil, fmt.Errorf("loading job record: %w", err)
	}

	rec, err := job.FromModel(m)
	if err != nil {
		return nil, fmt.Errorf("rehydrating job %s: %w", jobID, err)
	}
	return t.track(rec), nil
}

// List returns persisted job records.
func (t *Tracker) List(ctx context.Context, filter store.RecordFilter) ([]*models.JobRecord, int, error) {
	return t.store.ListJobRecords(ctx, filter)
}

// Status observes jobID, then updates the status cache and the stored last state
// and publishes a state-change event when the state moved.
func (t *Tracker) Status(ctx context.Context, jobID string) (*StatusReport, error) {
	f, err := t.Facade(ctx, jobID)
	if err != nil {
		return nil, err
	}
	obs, err := t.observe(ctx, f)
	if err != nil {
		return nil, err
	}
	return &StatusReport{
		JobID:    jobID,
		State:    obs.State,
		Finished: job.IsFinished(obs.State),
		Snapshot: obs.Snapshot,
	}, nil
}

// Statuses observes several jobs concurrently. Per-job failures are reported in
// the result rather than failing the batch.
func (t *Tracker) Statuses(ctx context.Context, jobIDs []string) []BatchStatus {
	out := make([]BatchStatus, len(jobIDs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.batch)
	for i, id := range jobIDs {
		g.Go(func() error {
			out[i] = BatchStatus{JobID: id}
			rep, err := t.Status(gctx, id)
			if err != nil {
				out[i].ErrorCode = apperrors.Code(err)
				out[i].Error = err.Error()
				return nil
			}
			out[i].State = rep.State
			out[i].Finished = rep.Finished
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// Log returns a page of jobID's log.
func (t *Tracker) Log(ctx context.Context, jobID string, firstLine, numLines int) (*job.LogPage, error) {
	f, err := t.Facade(ctx, jobID)
	if err != nil {
		return nil, err
	}
	before, _ := f.LastState()
	page, err := f.Log(ctx, firstLine, numLines)
	if err != nil {
		return nil, err
	}
	t.afterObservation(ctx, f, before, page.State)
	return page, nil
}

// Output renders jobID's output.
func (t *Tracker) Output(ctx context.Context, jobID string) (*job.Output, error) {
	f, err := t.Facade(ctx, jobID)
	if err != nil {
		return nil, err
	}
	before, _ := f.LastState()
	out, err := f.RenderedOutput(ctx)
	if err != nil {
		return nil, err
	}
	t.afterObservation(ctx, f, before, out.State)
	return out, nil
}

// Cancel forwards a best-effort cancel request for jobID.
func (t *Tracker) Cancel(ctx context.Context, jobID string) (execsvc.CancelResult, error) {
	f, err := t.Facade(ctx, jobID)
	if err != nil {
		return execsvc.CancelUnsupported, err
	}
	return f.Cancel(ctx), nil
}

// Info returns display information for jobID.
func (t *Tracker) Info(ctx context.Context, jobID string) (*job.Info, error) {
	f, err := t.Facade(ctx, jobID)
	if err != nil {
		return nil, err
	}
	before, _ := f.LastState()
	info := f.Info(ctx)
	if info.State != "" {
		t.afterObservation(ctx, f, before, info.State)
		return info, nil
	}

	cached, found, err := t.cache.GetJobStatus(ctx, jobID)
	if err != nil {
		slog.WarnContext(ctx, "status cache read failed", "job_id", jobID, "error", err)
	} else if found {
		info.LastKnownState = job.State(cached)
	}
	return info, nil
}

// Params returns the launch parameters the execution service stored for jobID.
func (t *Tracker) Params(ctx context.Context, jobID string) (*models.JobParams, error) {
	f, err := t.Facade(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return f.Parameters(ctx)
}

// Tracked returns the number of job facades held in memory.
func (t *Tracker) Tracked() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.facades)
}

func (t *Tracker) persist(ctx context.Context, rec *job.Record) error {
	err := t.store.CreateJobRecord(ctx, rec.Model())
	if errors.Is(err, store.ErrDuplicateKey) {
		return apperrors.Conflict("job", rec.JobID)
	}
	if err != nil {
		return fmt.Errorf("persisting job record: %w", err)
	}
	return nil
}

// track returns the facade already held for rec's id, or stores a new one.
func (t *Tracker) track(rec *job.Record) *job.Facade {
	t.mu.Lock()
	defer t.mu.Unlock()
	if f, ok := t.facades[rec.JobID]; ok {
		return f
	}
	f := job.NewFacade(rec, job.Deps{
		Client:  t.client,
		Specs:   t.specs,
		Vars:    t.vars,
		Metrics: t.metrics,
	})
	t.facades[rec.JobID] = f
	t.metrics.RecordJobTracked(context.Background(), 1)
	return f
}

// release drops f once its job is terminal. A facade that was already replaced
// by a newer one for the same id is left alone.
func (t *Tracker) release(ctx context.Context, f *job.Facade) {
	t.mu.Lock()
	cur, ok := t.facades[f.JobID()]
	if ok && cur == f {
		delete(t.facades, f.JobID())
	}
	t.mu.Unlock()

	if ok && cur == f {
		t.metrics.RecordJobTracked(ctx, -1)
		slog.DebugContext(ctx, "released finished job", "job_id", f.JobID())
	}
}

func (t *Tracker) observe(ctx context.Context, f *job.Facade) (*job.Observation, error) {
	before, _ := f.LastState()
	obs, err := f.Observe(ctx)
	if err != nil {
		return nil, err
	}
	t.afterObservation(ctx, f, before, obs.State)
	return obs, nil
}

// afterObservation writes state to the cache and the store, publishes a change
// event and releases the facade of a terminal job. fallback is the previous state
// used when the cache is unavailable. Failures are logged and never surface to
// the caller.
func (t *Tracker) afterObservation(ctx context.Context, f *job.Facade, fallback, state job.State) {
	if state.IsTerminal() {
		defer t.release(ctx, f)
	}

	rec := f.Record()
	now := time.Now().UTC()

	prev, found, err := t.cache.SwapJobStatus(ctx, rec.JobID, state.String(), t.statusTTL)
	if err != nil {
		slog.WarnContext(ctx, "status cache write failed", "job_id", rec.JobID, "error", err)
		prev, found = fallback.String(), fallback != ""
	}

	if err := t.store.UpdateLastState(ctx, rec.JobID, state.String(), now); err != nil {
		slog.WarnContext(ctx, "last state update failed", "job_id", rec.JobID, "error", err)
	}

	if found && prev == state.String() {
		return
	}

	ev := models.JobStateChanged{
		ID:         uuid.New(),
		JobID:      rec.JobID,
		AppID:      rec.AppID,
		CellID:     rec.CellID,
		From:       prev,
		To:         state.String(),
		Terminal:   state.IsTerminal(),
		HappenedAt: now.Unix(),
	}
	if err := t.events.PublishStateChanged(ctx, ev); err != nil {
		slog.WarnContext(ctx, "state change publish failed", "job_id", rec.JobID, "error", err)
		return
	}
	slog.InfoContext(ctx, "job state changed", "job_id", rec.JobID, "from", prev, "to", state)
}
