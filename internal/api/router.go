package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	mw "github.com/kiranshivaraju/jobtrack/internal/api/middleware"
	"github.com/kiranshivaraju/jobtrack/internal/api/response"
	"github.com/kiranshivaraju/jobtrack/internal/observability"
)

// Dependencies holds all handler and middleware dependencies for the router.
// A nil RateLimit disables limiting; nil handlers answer 501.
type Dependencies struct {
	RateLimit *mw.RateLimit
	Metrics   *observability.Metrics

	HealthHandler  http.HandlerFunc
	MetricsHandler http.Handler

	ListJobs    http.HandlerFunc
	RegisterJob http.HandlerFunc
	AdoptJob    http.HandlerFunc
	BatchStatus http.HandlerFunc
	JobInfo     http.HandlerFunc
	JobStatus   http.HandlerFunc
	JobLog      http.HandlerFunc
	JobOutput   http.HandlerFunc
	JobParams   http.HandlerFunc
	CancelJob   http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(mw.RequestID)
	r.Use(mw.Logger(deps.Metrics))
	r.Use(mw.Recovery)

	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	r.Group(func(r chi.Router) {
		if deps.RateLimit != nil {
			r.Use(deps.RateLimit.Limit)
		}

		r.Route("/api/v1/jobs", func(r chi.Router) {
			r.Get("/", orNotImplemented(deps.ListJobs))
			r.Post("/", orNotImplemented(deps.RegisterJob))
			r.Post("/adopt", orNotImplemented(deps.AdoptJob))
			r.Get("/status", orNotImplemented(deps.BatchStatus))

			r.Route("/{jobID}", func(r chi.Router) {
				r.Get("/", orNotImplemented(deps.JobInfo))
				r.Get("/status", orNotImplemented(deps.JobStatus))
				r.Get("/log", orNotImplemented(deps.JobLog))
				r.Get("/output", orNotImplemented(deps.JobOutput))
				r.Get("/params", orNotImplemented(deps.JobParams))
				r.Post("/cancel", orNotImplemented(deps.CancelJob))
			})
		})
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
