package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"

	"github.com/kiranshivaraju/jobtrack/internal/apperrors"
	"github.com/kiranshivaraju/jobtrack/internal/appspec"
	"github.com/kiranshivaraju/jobtrack/internal/binding"
	"github.com/kiranshivaraju/jobtrack/internal/execsvc"
	"github.com/kiranshivaraju/jobtrack/internal/observability"
	"github.com/kiranshivaraju/jobtrack/pkg/models"
)

// ToEnd requests every log line from first_line through the end of the buffer.
const ToEnd = -1

// UnknownApp is reported as the app name when no app spec can be loaded.
const UnknownApp = "Unknown App"

// SpecSource looks up the app spec a job was launched from.
type SpecSource interface {
	Get(appID, tag string) (*appspec.Spec, error)
}

// Deps are the collaborators a Facade is built from.
type Deps struct {
	Client  execsvc.Client
	Specs   SpecSource
	Vars    binding.LookupFunc
	Metrics *observability.Metrics
}

// LogPage is one page of a job's log.
type LogPage struct {
	JobID     string   `json:"job_id"`
	State     State    `json:"state"`
	Finished  bool     `json:"finished"`
	FirstLine int      `json:"first_line"`
	Total     int      `json:"total"`
	Lines     []string `json:"lines"`
}

// Output is the rendered output of a job. When Complete is false only State and
// Message are set.
type Output struct {
	JobID    string         `json:"job_id"`
	Complete bool           `json:"complete"`
	State    State          `json:"state"`
	Message  string         `json:"message,omitempty"`
	Widget   string         `json:"widget,omitempty"`
	Tag      string         `json:"tag,omitempty"`
	Params   binding.Params `json:"params,omitempty"`
}

// Info summarizes a job for display. StateError is set instead of State when the
// current state could not be read; LastKnownState may then carry an earlier
// observation.
type Info struct {
	JobID           string         `json:"job_id"`
	AppID           string         `json:"app_id"`
	AppName         string         `json:"app_name"`
	AppVersion      string         `json:"app_version,omitempty"`
	Tag             string         `json:"tag"`
	CellID          string         `json:"cell_id,omitempty"`
	Inputs          map[string]any `json:"inputs"`
	State           State          `json:"state,omitempty"`
	StateError      string         `json:"state_error,omitempty"`
	LastKnownState  State          `json:"last_known_state,omitempty"`
	CancelRequested bool           `json:"cancel_requested"`
}

// Facade exposes the operations a caller needs for one job. It owns the single
// execution service handle shared by its poller and log cache.
type Facade struct {
	record *Record
	client execsvc.Client
	poller *Poller
	logs   *LogCache
	specs  SpecSource
	binder *binding.Binder
	vars   binding.LookupFunc

	mu              sync.Mutex
	last            State
	cancelRequested bool
}

// NewFacade creates a Facade for record. Construction makes no remote calls.
func NewFacade(record *Record, deps Deps) *Facade {
	return &Facade{
		record: record,
		client: deps.Client,
		poller: NewPoller(deps.Client, deps.Metrics),
		logs:   NewLogCache(record.JobID, deps.Client, deps.Metrics),
		specs:  deps.Specs,
		binder: binding.NewBinder(deps.Metrics),
		vars:   deps.Vars,
	}
}

// Record returns the job's launch record.
func (f *Facade) Record() *Record {
	return f.record
}

// JobID returns the job id.
func (f *Facade) JobID() string {
	return f.record.JobID
}

// Observe reads the current status and returns the state with its raw payload.
func (f *Facade) Observe(ctx context.Context) (*Observation, error) {
	obs, err := f.poller.Observe(ctx, f.record.JobID)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	prev := f.last
	f.last = obs.State
	f.mu.Unlock()

	if prev.IsTerminal() && prev != obs.State {
		slog.WarnContext(ctx, "job left a terminal state",
			"job_id", f.record.JobID, "from", prev, "to", obs.State)
	}
	return obs, nil
}

// Status returns the current lifecycle state.
func (f *Facade) Status(ctx context.Context) (State, error) {
	obs, err := f.Observe(ctx)
	if err != nil {
		return "", err
	}
	return obs.State, nil
}

// RawState returns the full status payload.
func (f *Facade) RawState(ctx context.Context) (*models.StateSnapshot, error) {
	obs, err := f.Observe(ctx)
	if err != nil {
		return nil, err
	}
	return obs.Snapshot, nil
}

// IsFinished reports whether the job has reached a terminal state.
func (f *Facade) IsFinished(ctx context.Context) (bool, error) {
	state, err := f.Status(ctx)
	if err != nil {
		return false, err
	}
	return IsFinished(state), nil
}

// LastState returns the most recently observed state without a remote call.
func (f *Facade) LastState() (State, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last, f.last != ""
}

// Log checks the job's status, then returns numLines log lines starting at
// firstLine. numLines == ToEnd reads through the end of the log.
func (f *Facade) Log(ctx context.Context, firstLine, numLines int) (*LogPage, error) {
	state, err := f.Status(ctx)
	if err != nil {
		return nil, err
	}

	var (
		total int
		lines []string
	)
	if numLines == ToEnd {
		total, lines, err = f.logs.Rest(ctx, firstLine)
	} else {
		total, lines, err = f.logs.Lines(ctx, firstLine, numLines)
	}
	if err != nil {
		return nil, err
	}

	return &LogPage{
		JobID:     f.record.JobID,
		State:     state,
		Finished:  IsFinished(state),
		FirstLine: max(firstLine, 0),
		Total:     total,
		Lines:     lines,
	}, nil
}

// RenderedOutput returns the job's rendered output. A job that has not completed
// yields an Output with Complete false and a descriptive message, not an error.
func (f *Facade) RenderedOutput(ctx context.Context) (*Output, error) {
	obs, err := f.Observe(ctx)
	if err != nil {
		return nil, err
	}

	spec, params, err := f.render(ctx, obs)
	if errors.Is(err, apperrors.ErrJobNotReady) {
		return &Output{
			JobID:    f.record.JobID,
			Complete: false,
			State:    obs.State,
			Message:  incompleteMessage(obs),
		}, nil
	}
	if err != nil {
		return nil, err
	}

	return &Output{
		JobID:    f.record.JobID,
		Complete: true,
		State:    obs.State,
		Widget:   spec.OutputWidget,
		Tag:      f.record.Tag,
		Params:   params,
	}, nil
}

func (f *Facade) render(ctx context.Context, obs *Observation) (*appspec.Spec, binding.Params, error) {
	if obs.State != StateCompleted || !obs.Snapshot.HasResult() {
		return nil, nil, apperrors.NotReady(f.record.JobID, obs.State.String())
	}

	spec, err := f.appSpec()
	if err != nil {
		return nil, nil, fmt.Errorf("loading app spec for job %s: %w", f.record.JobID, err)
	}

	tree, err := binding.DecodeResult(obs.Snapshot.Result)
	if err != nil {
		return nil, nil, apperrors.RemoteService(f.record.JobID, "decode result", err)
	}

	params := f.binder.Resolve(ctx, spec.Output, tree, f.record.Inputs, f.vars)
	return spec, params, nil
}

func (f *Facade) appSpec() (*appspec.Spec, error) {
	if f.specs == nil {
		return &appspec.Spec{
			ID:           f.record.AppID,
			Tag:          f.record.Tag,
			OutputWidget: appspec.DefaultWidget,
			Output:       binding.Spec{},
		}, nil
	}
	return f.specs.Get(f.record.AppID, f.record.Tag)
}

func incompleteMessage(obs *Observation) string {
	if obs.State == StateCompleted {
		return "Job completed without a result"
	}
	return fmt.Sprintf("Job is incomplete! It has status '%s'", obs.State)
}

// Cancel records the intent to cancel the job and forwards it to the execution
// service. It never fails: a service that cannot cancel this job, or a failed
// request, leaves the job running and is only logged.
func (f *Facade) Cancel(ctx context.Context) execsvc.CancelResult {
	f.mu.Lock()
	f.cancelRequested = true
	f.mu.Unlock()

	res, err := f.client.Cancel(ctx, f.record.JobID)
	if err != nil {
		slog.WarnContext(ctx, "cancel request failed",
			"job_id", f.record.JobID, "error", err)
		return execsvc.CancelUnsupported
	}
	slog.InfoContext(ctx, "cancel requested", "job_id", f.record.JobID, "result", res.String())
	return res
}

// CancelRequested reports whether Cancel has been called.
func (f *Facade) CancelRequested() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cancelRequested
}

// Parameters fetches the job's stored launch parameters from the execution service.
func (f *Facade) Parameters(ctx context.Context) (*models.JobParams, error) {
	return f.client.GetParams(ctx, f.record.JobID)
}

// Info returns display information about the job. A failed status read is
// reported in StateError rather than returned.
func (f *Facade) Info(ctx context.Context) *Info {
	info := &Info{
		JobID:      f.record.JobID,
		AppID:      f.record.AppID,
		AppName:    UnknownApp,
		AppVersion: f.record.AppVersion,
		Tag:        f.record.Tag,
		CellID:     f.record.CellID,
		Inputs:     maps.Clone(f.record.Inputs),

		CancelRequested: f.CancelRequested(),
	}

	if f.specs != nil {
		if spec, err := f.specs.Get(f.record.AppID, f.record.Tag); err == nil {
			if spec.Name != "" {
				info.AppName = spec.Name
			}
			if info.AppVersion == "" {
				info.AppVersion = spec.Version
			}
		} else {
			slog.DebugContext(ctx, "app spec unavailable", "job_id", f.record.JobID, "app_id", f.record.AppID, "error", err)
		}
	}

	state, err := f.Status(ctx)
	if err != nil {
		info.StateError = fmt.Sprintf("Unable to retrieve current running state: %v", err)
		return info
	}
	info.State = state
	return info
}
