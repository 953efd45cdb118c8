// Package backoff computes retry delays for callers polling the execution service.
package backoff

import (
	"context"
	"math"
	"time"
)

// Config for exponential backoff. Zero values use defaults.
type Config struct {
	Initial time.Duration // default: 500ms
	Max     time.Duration // default: 30s
}

func (c *Config) bounds() (time.Duration, time.Duration) {
	initial := 500 * time.Millisecond
	maxDelay := 30 * time.Second
	if c != nil {
		if c.Initial > 0 {
			initial = c.Initial
		}
		if c.Max > 0 {
			maxDelay = c.Max
		}
	}
	return initial, maxDelay
}

// Exponential returns the delay before retry number attempt (1-based):
// Initial, then doubling up to Max.
func Exponential(attempt int, cfg *Config) time.Duration {
	initial, maxDelay := cfg.bounds()
	if attempt < 1 {
		return initial
	}
	delay := float64(initial) * math.Pow(2.0, float64(attempt-1))
	if delay > float64(maxDelay) {
		return maxDelay
	}
	return time.Duration(delay)
}

// Wait sleeps for Exponential(attempt, cfg) or until ctx is done.
func Wait(ctx context.Context, attempt int, cfg *Config) error {
	return Sleep(ctx, Exponential(attempt, cfg))
}

// Sleep pauses for d or until ctx is done, returning ctx.Err() in the latter case.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
