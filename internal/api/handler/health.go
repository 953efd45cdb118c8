package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/kiranshivaraju/jobtrack/internal/api/response"
)

const healthTimeout = 3 * time.Second

// Check is one dependency probed by the health endpoint.
type Check struct {
	Name string
	Ping func(ctx context.Context) error
}

// Health reports "ok" for every check that answers, and 503 DEGRADED when any fails.
func Health(checks ...Check) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()

		results := make(map[string]string, len(checks))
		degraded := false
		for _, c := range checks {
			results[c.Name] = "ok"
			if err := c.Ping(ctx); err != nil {
				results[c.Name] = "degraded"
				degraded = true
			}
		}

		if degraded {
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
				"One or more services degraded", results)
			return
		}

		response.JSON(w, map[string]any{
			"status":   "ok",
			"services": results,
		})
	}
}
