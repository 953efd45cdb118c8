package job

import (
	"context"

	"github.com/kiranshivaraju/jobtrack/internal/execsvc"
	"github.com/kiranshivaraju/jobtrack/internal/observability"
	"github.com/kiranshivaraju/jobtrack/pkg/models"
)

// Observation is one status reading: the mapped state and the raw payload it came from.
type Observation struct {
	State    State
	Snapshot *models.StateSnapshot
}

// Poller reads job status from the execution service. It keeps no state between
// calls and never retries; a failed read is returned to the caller as is.
type Poller struct {
	client  execsvc.Client
	metrics *observability.Metrics
}

// NewPoller creates a Poller.
func NewPoller(client execsvc.Client, metrics *observability.Metrics) *Poller {
	return &Poller{client: client, metrics: metrics}
}

// RawState returns the full status payload for jobID without mapping its state.
func (p *Poller) RawState(ctx context.Context, jobID string) (*models.StateSnapshot, error) {
	return p.client.CheckStatus(ctx, jobID)
}

// Observe reads the status of jobID and maps it onto the lifecycle. Callers
// needing only the state or IsFinished derive them from the Observation.
func (p *Poller) Observe(ctx context.Context, jobID string) (*Observation, error) {
	snap, err := p.RawState(ctx, jobID)
	if err != nil {
		return nil, err
	}
	state, err := ParseState(jobID, snap.JobState)
	if err != nil {
		return nil, err
	}
	p.metrics.RecordStatus(ctx, state.String())
	return &Observation{State: state, Snapshot: snap}, nil
}
