package http

import (
	"net/http"

	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/domain/budget"
)

// GetBudget handles GET /api/v1/projects/{id}/budget?estimated_cost=
func (h *Handlers) GetBudget(w http.ResponseWriter, r *http.Request) {
	estimated, ok := queryFloat(w, r, "estimated_cost")
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.Budgets.CheckBudget(urlParam(r, "id"), estimated))
}

// PutBudget handles PUT /api/v1/projects/{id}/budget
func (h *Handlers) PutBudget(w http.ResponseWriter, r *http.Request) {
	cfg, ok := readJSON[budget.Config](w, r)
	if !ok {
		return
	}
	scope := urlParam(r, "id")
	if err := h.Budgets.SetBudget(r.Context(), scope, cfg); err != nil {
		writeDomainError(w, err, "", nil)
		return
	}
	writeJSON(w, http.StatusOK, h.Budgets.CheckBudget(scope, 0))
}

// DeleteBudget handles DELETE /api/v1/projects/{id}/budget
func (h *Handlers) DeleteBudget(w http.ResponseWriter, r *http.Request) {
	if err := h.Budgets.RemoveBudget(r.Context(), urlParam(r, "id")); err != nil {
		writeDomainError(w, err, "budget not found", nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ResetBudget handles POST /api/v1/projects/{id}/budget/reset?period=daily|monthly
func (h *Handlers) ResetBudget(w http.ResponseWriter, r *http.Request) {
	period, err := budget.ParsePeriod(r.URL.Query().Get("period"))
	if err != nil {
		writeDomainError(w, err, "", nil)
		return
	}
	scope := urlParam(r, "id")
	h.Budgets.Reset(r.Context(), scope, period)
	writeJSON(w, http.StatusOK, h.Budgets.CheckBudget(scope, 0))
}
