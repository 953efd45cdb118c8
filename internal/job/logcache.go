package job

import (
	"context"
	"log/slog"
	"sync"

	"github.com/kiranshivaraju/jobtrack/internal/observability"
)

// LogSource returns the log lines of a job after the first skip lines.
type LogSource interface {
	GetLogs(ctx context.Context, jobID string, skipLines int) ([]string, error)
}

// LogCache is the append-only local copy of one job's log. Every read first
// fetches the lines beyond the current buffer length, so the buffer never holds
// gaps or duplicates. Calls are serialized.
type LogCache struct {
	jobID   string
	source  LogSource
	metrics *observability.Metrics

	mu    sync.Mutex
	lines []string
}

// NewLogCache creates an empty LogCache for jobID.
func NewLogCache(jobID string, source LogSource, metrics *observability.Metrics) *LogCache {
	return &LogCache{jobID: jobID, source: source, metrics: metrics}
}

// Lines refreshes the buffer and returns its length plus up to count lines
// starting at first. Out-of-range requests return an empty slice, not an error.
// If the refresh fails the error is returned and the buffer keeps its last
// known-good contents.
func (c *LogCache) Lines(ctx context.Context, first, count int) (int, []string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.refresh(ctx); err != nil {
		return len(c.lines), nil, err
	}
	total, out := c.slice(first, count)
	return total, out, nil
}

// Rest refreshes the buffer and returns its length plus every line from first
// through the end of the buffer.
func (c *LogCache) Rest(ctx context.Context, first int) (int, []string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.refresh(ctx); err != nil {
		return len(c.lines), nil, err
	}
	first = max(first, 0)
	total, out := c.slice(first, len(c.lines)-first)
	return total, out, nil
}

// Len returns the buffer length without contacting the execution service.
func (c *LogCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.lines)
}

func (c *LogCache) refresh(ctx context.Context) error {
	fresh, err := c.source.GetLogs(ctx, c.jobID, len(c.lines))
	if err != nil {
		slog.WarnContext(ctx, "log refresh failed",
			"job_id", c.jobID, "buffered", len(c.lines), "error", err)
		return err
	}
	if len(fresh) > 0 {
		c.lines = append(c.lines, fresh...)
		c.metrics.RecordLogLines(ctx, len(fresh))
	}
	return nil
}

// slice must be called with mu held. The returned lines are a copy.
func (c *LogCache) slice(first, count int) (int, []string) {
	total := len(c.lines)
	first = max(first, 0)
	if first >= total || count <= 0 {
		return total, []string{}
	}
	end := first + min(count, total-first)
	out := make([]string, end-first)
	copy(out, c.lines[first:end])
	return total, out
}
