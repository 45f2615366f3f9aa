package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// MountRoutes registers the API routes on r. runLimiter, when non-nil,
// guards run submission per project on top of the global limiter.
func MountRoutes(r chi.Router, h *Handlers, runLimiter func(http.Handler) http.Handler) {
	r.Get("/health", h.Health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"version": Version})
		})

		// Stateless planning
		r.Post("/analyze", h.Analyze)
		r.Post("/optimize", h.Optimize)
		r.Post("/orchestrate", h.Orchestrate)
		r.Get("/crew", h.ListCrew)

		// Runs
		r.Route("/projects/{id}", func(r chi.Router) {
			if runLimiter != nil {
				r.With(runLimiter).Post("/runs", h.StartRun)
			} else {
				r.Post("/runs", h.StartRun)
			}
			r.Get("/usage", h.ListUsage)

			// Budget
			r.Get("/budget", h.GetBudget)
			r.Put("/budget", h.PutBudget)
			r.Delete("/budget", h.DeleteBudget)
			r.Post("/budget/reset", h.ResetBudget)

			// Costs
			r.Get("/costs", h.ProjectCostSummary)
			r.Get("/costs/by-model", h.ProjectCostByModel)
			r.Get("/costs/by-crew", h.ProjectCostByCrew)
			r.Get("/costs/daily", h.ProjectCostTimeSeries)
		})

		r.Get("/costs", h.GlobalCostSummary)
		r.Get("/workflow-requests/{id}", h.GetWorkflowRequest)
	})
}
