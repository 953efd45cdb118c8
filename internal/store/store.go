package store

import (
	"context"
	"errors"
	"time"

	"github.com/kiranshivaraju/jobtrack/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error

	CreateJobRecord(ctx context.Context, rec *models.JobRecord) error
	GetJobRecord(ctx context.Context, jobID string) (*models.JobRecord, error)
	ListJobRecords(ctx context.Context, filter RecordFilter) ([]*models.JobRecord, int, error)
	UpdateLastState(ctx context.Context, jobID, state string, observedAt time.Time) error
}

// RecordFilter narrows ListJobRecords. Zero values match everything.
type RecordFilter struct {
	AppID string
	State string
	Page  int
	Limit int
}
