package job

import (
	"fmt"
	"maps"

	"github.com/kiranshivaraju/jobtrack/internal/apperrors"
	"github.com/kiranshivaraju/jobtrack/pkg/models"
)

// Release channels an app can be launched from.
const (
	TagRelease = "release"
	TagBeta    = "beta"
	TagDev     = "dev"
)

// Record is the identity and launch metadata of one job. It is not mutated after
// construction.
type Record struct {
	JobID      string
	AppID      string
	AppVersion string
	Tag        string
	CellID     string
	Inputs     map[string]any
}

// Option configures a Record built by NewRecord.
type Option func(*Record)

// WithTag sets the release channel. An empty tag keeps the default.
func WithTag(tag string) Option {
	return func(r *Record) {
		if tag != "" {
			r.Tag = tag
		}
	}
}

// WithAppVersion sets the app (service) version the job was launched with.
func WithAppVersion(version string) Option {
	return func(r *Record) { r.AppVersion = version }
}

// WithCellID sets the correlation handle of the invoking context.
func WithCellID(cellID string) Option {
	return func(r *Record) { r.CellID = cellID }
}

// NewRecord builds the record of a job just submitted to the execution service.
func NewRecord(jobID, appID string, inputs map[string]any, opts ...Option) (*Record, error) {
	r := &Record{
		JobID:  jobID,
		AppID:  appID,
		Tag:    TagRelease,
		Inputs: maps.Clone(inputs),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.Inputs == nil {
		r.Inputs = map[string]any{}
	}
	if err := r.validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// FromState rebuilds a record from previously stored job info. It performs no
// remote calls.
func FromState(jobID string, info models.JobParams, appID, tag, cellID string) (*Record, error) {
	return NewRecord(jobID, appID, info.Params,
		WithAppVersion(info.ServiceVersion),
		WithTag(tag),
		WithCellID(cellID),
	)
}

// FromModel rebuilds a record from its persisted form.
func FromModel(m *models.JobRecord) (*Record, error) {
	return FromState(m.JobID, models.JobParams{Params: m.Params, ServiceVersion: m.ServiceVersion},
		m.AppID, m.Tag, m.CellID)
}

// Model returns the persisted form of r.
func (r *Record) Model() *models.JobRecord {
	return &models.JobRecord{
		JobID:          r.JobID,
		AppID:          r.AppID,
		ServiceVersion: r.AppVersion,
		Tag:            r.Tag,
		CellID:         r.CellID,
		Params:         maps.Clone(r.Inputs),
	}
}

func (r *Record) validate() error {
	if r.JobID == "" {
		return apperrors.Validation("job_id", "job_id is required")
	}
	if r.AppID == "" {
		return apperrors.Validation("app_id", "app_id is required")
	}
	switch r.Tag {
	case TagRelease, TagBeta, TagDev:
	default:
		return apperrors.Validation("tag", fmt.Sprintf("tag must be one of release, beta, dev (got %q)", r.Tag))
	}
	return nil
}
