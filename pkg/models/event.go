package models

import "github.com/google/uuid"

// JobStateChanged is published whenever a newly observed state differs from
// the last one recorded for the job.
type JobStateChanged struct {
	ID         uuid.UUID `json:"id"`
	JobID      string    `json:"job_id"`
	AppID      string    `json:"app_id,omitempty"`
	CellID     string    `json:"cell_id,omitempty"`
	From       string    `json:"from,omitempty"`
	To         string    `json:"to"`
	Terminal   bool      `json:"terminal"`
	HappenedAt int64     `json:"happened_at"`
}
