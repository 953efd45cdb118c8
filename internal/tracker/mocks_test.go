package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/kiranshivaraju/jobtrack/internal/apperrors"
	"github.com/kiranshivaraju/jobtrack/internal/execsvc"
	"github.com/kiranshivaraju/jobtrack/internal/store"
	"github.com/kiranshivaraju/jobtrack/pkg/models"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// --- mocks ---

type mockStore struct {
	mu         sync.Mutex
	records    map[string]*models.JobRecord
	getCalls   int
	createErr  error
	updateErr  error
	lastStates map[string]string
}

func newMockStore() *mockStore {
	return &mockStore{
		records:    make(map[string]*models.JobRecord),
		lastStates: make(map[string]string),
	}
}

func (s *mockStore) Ping(_ context.Context) error { return nil }

func (s *mockStore) CreateJobRecord(_ context.Context, rec *models.JobRecord) error {
	if s.createErr != nil {
		return s.createErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[rec.JobID]; ok {
		return store.ErrDuplicateKey
	}
	s.records[rec.JobID] = rec
	return nil
}

func (s *mockStore) GetJobRecord(_ context.Context, jobID string) (*models.JobRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getCalls++
	rec, ok := s.records[jobID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return rec, nil
}

func (s *mockStore) ListJobRecords(_ context.Context, _ store.RecordFilter) ([]*models.JobRecord, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.JobRecord
	for _, r := range s.records {
		out = append(out, r)
	}
	return out, len(out), nil
}

func (s *mockStore) UpdateLastState(_ context.Context, jobID, state string, _ time.Time) error {
	if s.updateErr != nil {
		return s.updateErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[jobID]; !ok {
		return store.ErrNotFound
	}
	s.lastStates[jobID] = state
	return nil
}

func (s *mockStore) lastState(jobID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastStates[jobID]
}

type mockCache struct {
	mu       sync.Mutex
	statuses map[string]string
	err      error
}

func newMockCache() *mockCache {
	return &mockCache{statuses: make(map[string]string)}
}

func (c *mockCache) Ping(_ context.Context) error { return nil }

func (c *mockCache) SwapJobStatus(_ context.Context, jobID, status string, _ time.Duration) (string, bool, error) {
	if c.err != nil {
		return "", false, c.err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	prev, ok := c.statuses[jobID]
	c.statuses[jobID] = status
	return prev, ok, nil
}

func (c *mockCache) GetJobStatus(_ context.Context, jobID string) (string, bool, error) {
	if c.err != nil {
		return "", false, c.err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.statuses[jobID]
	return s, ok, nil
}

func (c *mockCache) IncrWithExpiry(_ context.Context, _ string, _ time.Duration) (int64, error) {
	return 1, nil
}

type mockPublisher struct {
	mu     sync.Mutex
	events []models.JobStateChanged
	err    error
}

func (p *mockPublisher) PublishStateChanged(_ context.Context, ev models.JobStateChanged) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, ev)
	return nil
}

func (p *mockPublisher) Close() {}

func (p *mockPublisher) published() []models.JobStateChanged {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.JobStateChanged(nil), p.events...)
}

// mockClient serves per-job states and counts calls by operation.
type mockClient struct {
	mu     sync.Mutex
	states map[string]string
	result json.RawMessage
	params map[string]*models.JobParams
	logs   []string
	calls  map[string]int
}

func newMockClient() *mockClient {
	return &mockClient{
		states: make(map[string]string),
		params: make(map[string]*models.JobParams),
		calls:  make(map[string]int),
	}
}

func (c *mockClient) count(op string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[op]++
}

func (c *mockClient) callsTo(op string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[op]
}

func (c *mockClient) setState(jobID, state string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.states[jobID] = state
}

func (c *mockClient) CheckStatus(_ context.Context, jobID string) (*models.StateSnapshot, error) {
	c.count("status")
	c.mu.Lock()
	defer c.mu.Unlock()
	state, ok := c.states[jobID]
	if !ok {
		return nil, apperrors.UnknownJob(jobID)
	}
	return &models.StateSnapshot{JobID: jobID, JobState: state, Result: c.result}, nil
}

func (c *mockClient) GetParams(_ context.Context, jobID string) (*models.JobParams, error) {
	c.count("params")
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.params[jobID]
	if !ok {
		return nil, apperrors.UnknownJob(jobID)
	}
	return p, nil
}

func (c *mockClient) GetLogs(_ context.Context, _ string, skip int) ([]string, error) {
	c.count("logs")
	c.mu.Lock()
	defer c.mu.Unlock()
	if skip >= len(c.logs) {
		return nil, nil
	}
	return append([]string(nil), c.logs[skip:]...), nil
}

func (c *mockClient) Cancel(_ context.Context, _ string) (execsvc.CancelResult, error) {
	c.count("cancel")
	return execsvc.CancelUnsupported, nil
}

func (c *mockClient) Ready(_ context.Context) error { return nil }

var errCacheDown = errors.New("redis: connection refused")
