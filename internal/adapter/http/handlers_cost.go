package http

import (
	"net/http"

	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/service"
)

// --- Cost Endpoints ---

// GlobalCostSummary handles GET /api/v1/costs
func (h *Handlers) GlobalCostSummary(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.Cost.GlobalSummary(r.Context())
	if err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(summaries))
}

// ProjectCostSummary handles GET /api/v1/projects/{id}/costs
func (h *Handlers) ProjectCostSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.Cost.ProjectSummary(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "project not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// ProjectCostByModel handles GET /api/v1/projects/{id}/costs/by-model
func (h *Handlers) ProjectCostByModel(w http.ResponseWriter, r *http.Request) {
	models, err := h.Cost.ByModel(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "project not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(models))
}

// ProjectCostByCrew handles GET /api/v1/projects/{id}/costs/by-crew
func (h *Handlers) ProjectCostByCrew(w http.ResponseWriter, r *http.Request) {
	crew, err := h.Cost.ByCrew(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "project not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(crew))
}

// ProjectCostTimeSeries handles GET /api/v1/projects/{id}/costs/daily
func (h *Handlers) ProjectCostTimeSeries(w http.ResponseWriter, r *http.Request) {
	days, ok := queryInt(w, r, "days", service.DefaultCostSeriesDays)
	if !ok {
		return
	}
	series, err := h.Cost.TimeSeries(r.Context(), urlParam(r, "id"), days)
	if err != nil {
		writeDomainError(w, err, "project not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(series))
}
