package models

import "time"

// JobRecord is the persisted job-info record a job can be rehydrated from
// without contacting the execution service.
type JobRecord struct {
	JobID          string         `db:"job_id"          json:"job_id"`
	AppID          string         `db:"app_id"          json:"app_id"`
	ServiceVersion string         `db:"service_ver"     json:"service_ver,omitempty"`
	Tag            string         `db:"tag"             json:"tag"`
	CellID         string         `db:"cell_id"         json:"cell_id,omitempty"`
	Params         map[string]any `db:"params"          json:"params"`
	LastState      *string        `db:"last_state"      json:"last_state,omitempty"`
	LastObservedAt *time.Time     `db:"last_observed_at" json:"last_observed_at,omitempty"`
	CreatedAt      time.Time      `db:"created_at"      json:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at"      json:"updated_at"`
}
