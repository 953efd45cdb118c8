package models

import "encoding/json"

// StateSnapshot is the full status payload returned by the execution service.
// Result is only present once the job reaches a terminal state.
type StateSnapshot struct {
	JobID         string          `json:"job_id"`
	JobState      string          `json:"job_state"`
	Error         string          `json:"error,omitempty"`
	Result        json.RawMessage `json:"result,omitempty"`
	CreationTime  int64           `json:"creation_time,omitempty"`
	ExecStartTime int64           `json:"exec_start_time,omitempty"`
	FinishTime    int64           `json:"finish_time,omitempty"`
}

// HasResult reports whether a result payload is attached.
func (s *StateSnapshot) HasResult() bool {
	return len(s.Result) > 0 && string(s.Result) != "null"
}

// JobParams holds the stored launch parameters of a job.
type JobParams struct {
	Params         map[string]any `json:"params"`
	ServiceVersion string         `json:"service_ver,omitempty"`
}
