package service

import (
	"context"
	"fmt"

	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/domain"
	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/domain/cost"
	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/port/database"
)

// DefaultCostSeriesDays is the window TimeSeries uses when none is given.
const DefaultCostSeriesDays = 30

// maxCostSeriesDays bounds the time series window.
const maxCostSeriesDays = 365

// CostService provides cost and token aggregation queries over the usage ledger.
type CostService struct {
	store database.Store
}

// NewCostService creates a new CostService.
func NewCostService(store database.Store) *CostService {
	return &CostService{store: store}
}

// GlobalSummary returns cost totals grouped by project.
func (s *CostService) GlobalSummary(ctx context.Context) ([]cost.ProjectSummary, error) {
	return s.store.CostSummaryGlobal(ctx)
}

// ProjectSummary returns aggregate cost for a single project.
func (s *CostService) ProjectSummary(ctx context.Context, projectID string) (*cost.Summary, error) {
	if projectID == "" {
		return nil, fmt.Errorf("%w: project id is required", domain.ErrValidation)
	}
	return s.store.CostSummaryByProject(ctx, projectID)
}

// ByModel returns per-model cost breakdown for a project.
func (s *CostService) ByModel(ctx context.Context, projectID string) ([]cost.ModelSummary, error) {
	if projectID == "" {
		return nil, fmt.Errorf("%w: project id is required", domain.ErrValidation)
	}
	return s.store.CostByModel(ctx, projectID)
}

// ByCrew returns per-member cost breakdown for a project.
func (s *CostService) ByCrew(ctx context.Context, projectID string) ([]cost.CrewSummary, error) {
	if projectID == "" {
		return nil, fmt.Errorf("%w: project id is required", domain.ErrValidation)
	}
	return s.store.CostByCrew(ctx, projectID)
}

// TimeSeries returns daily cost aggregation for a project. days <= 0 uses
// DefaultCostSeriesDays.
func (s *CostService) TimeSeries(ctx context.Context, projectID string, days int) ([]cost.DailyCost, error) {
	if projectID == "" {
		return nil, fmt.Errorf("%w: project id is required", domain.ErrValidation)
	}
	if days <= 0 {
		days = DefaultCostSeriesDays
	}
	if days > maxCostSeriesDays {
		return nil, fmt.Errorf("%w: days must be at most %d", domain.ErrValidation, maxCostSeriesDays)
	}
	return s.store.CostTimeSeries(ctx, projectID, days)
}
